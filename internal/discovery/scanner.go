package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/muurk/plugscan/internal/handshake"
	"github.com/muurk/plugscan/internal/logging"
	"github.com/muurk/plugscan/internal/packet"
)

const (
	// DiscoveryPort is the UDP port plugs listen on for probes
	DiscoveryPort = 20002

	// DefaultTarget is the limited broadcast address on the discovery port
	DefaultTarget = "255.255.255.255:20002"

	// DefaultScanTimeout is the default time to wait for replies
	DefaultScanTimeout = 3 * time.Second

	// DefaultPollInterval bounds each wait for a datagram
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultHopLimit keeps the probe on the local network segment
	DefaultHopLimit = 5

	// maxDatagramSize is the largest UDP payload we accept
	maxDatagramSize = 65535
)

// Scanner broadcasts discovery probes and decodes plug replies
type Scanner struct {
	timeout        time.Duration
	pollInterval   time.Duration
	target         string
	listenAddr     string
	hopLimit       int
	kx             *handshake.KeyExchange
	logger         *zap.Logger
	onReply        func(Reply)
	metrics        *Metrics
	verifyChecksum bool
	matchPacketID  bool
}

// Option configures a Scanner
type Option func(*Scanner)

// WithTimeout sets how long a sweep polls for replies. Zero is allowed and
// returns as soon as the probe is sent.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// WithPollInterval sets the longest single wait for a datagram
func WithPollInterval(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithTarget sets the probe destination, e.g. a subnet-directed broadcast
// such as "192.168.1.255:20002". A missing port defaults to DiscoveryPort.
func WithTarget(addr string) Option {
	return func(s *Scanner) {
		if addr != "" {
			s.target = addr
		}
	}
}

// WithListenAddr sets the local address the sweep socket binds to
func WithListenAddr(addr string) Option {
	return func(s *Scanner) {
		s.listenAddr = addr
	}
}

// WithHopLimit sets the IPv4 TTL of the probe; zero leaves the system default
func WithHopLimit(ttl int) Option {
	return func(s *Scanner) {
		if ttl >= 0 {
			s.hopLimit = ttl
		}
	}
}

// WithKeyExchange shares a key pair across scanners of one session
func WithKeyExchange(kx *handshake.KeyExchange) Option {
	return func(s *Scanner) {
		s.kx = kx
	}
}

// WithLogger sets the logger used for scan diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReplyHandler registers a sink that sees every decoded or dropped reply.
// It runs on the goroutine iterating the sweep.
func WithReplyHandler(fn func(Reply)) Option {
	return func(s *Scanner) {
		s.onReply = fn
	}
}

// WithMetrics records scan counters on m
func WithMetrics(m *Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// WithVerifyChecksum drops replies whose CRC does not match
func WithVerifyChecksum(enabled bool) Option {
	return func(s *Scanner) {
		s.verifyChecksum = enabled
	}
}

// WithMatchPacketID drops replies whose packet id differs from the probe's
func WithMatchPacketID(enabled bool) Option {
	return func(s *Scanner) {
		s.matchPacketID = enabled
	}
}

// NewScanner creates a scanner. Without WithKeyExchange a key pair is
// generated here, once, and reused by every sweep of this scanner.
func NewScanner(opts ...Option) (*Scanner, error) {
	s := &Scanner{
		timeout:      DefaultScanTimeout,
		pollInterval: DefaultPollInterval,
		target:       DefaultTarget,
		listenAddr:   ":0",
		hopLimit:     DefaultHopLimit,
		logger:       logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.kx == nil {
		kx, err := handshake.GenerateKeyExchange()
		if err != nil {
			return nil, fmt.Errorf("failed to create key exchange: %w", err)
		}
		s.kx = kx
	}

	return s, nil
}

// Timeout returns the configured sweep timeout
func (s *Scanner) Timeout() time.Duration {
	return s.timeout
}

// KeyExchange returns the key pair advertised in probes
func (s *Scanner) KeyExchange() *handshake.KeyExchange {
	return s.kx
}

type probeParams struct {
	RSAKey string `json:"rsa_key"`
}

type probeRequest struct {
	Params probeParams `json:"params"`
}

// BuildProbe encodes the discovery request advertising kx's public key
func BuildProbe(kx *handshake.KeyExchange) ([]byte, error) {
	payload, err := json.Marshal(probeRequest{Params: probeParams{RSAKey: kx.PublicKeyPEM()}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode probe: %w", err)
	}
	return packet.BuildDiscovery(payload)
}

// Start opens the sweep socket and sends one probe. Socket and send failures
// are returned as *NetworkError. The caller must either range over
// Sweep.Devices or call Sweep.Close.
func (s *Scanner) Start(ctx context.Context) (*Sweep, error) {
	probe, err := BuildProbe(s.kx)
	if err != nil {
		return nil, err
	}

	target := s.target
	if _, _, err := net.SplitHostPort(target); err != nil {
		target = net.JoinHostPort(strings.Trim(target, "[]"), strconv.Itoa(DiscoveryPort))
	}
	dst, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return nil, &NetworkError{Op: "resolve", Addr: target, Err: err}
	}

	lc := net.ListenConfig{Control: controlSocket}
	conn, err := lc.ListenPacket(ctx, "udp4", s.listenAddr)
	if err != nil {
		return nil, &NetworkError{Op: "listen", Addr: s.listenAddr, Err: err}
	}

	if s.hopLimit > 0 {
		if err := ipv4.NewPacketConn(conn).SetTTL(s.hopLimit); err != nil {
			conn.Close()
			return nil, &NetworkError{Op: "configure", Addr: conn.LocalAddr().String(), Err: err}
		}
	}

	log := s.logger.With(zap.String("scan_id", uuid.NewString()))

	if _, err := conn.WriteTo(probe, dst); err != nil {
		conn.Close()
		return nil, &NetworkError{Op: "send", Addr: dst.String(), Err: err}
	}
	s.metrics.scanStarted()

	log.Info("Discovery probe sent",
		zap.String("target", dst.String()),
		zap.String("local_addr", conn.LocalAddr().String()),
		zap.Int("length", len(probe)),
		zap.Duration("timeout", s.timeout),
	)
	log.Debug("Probe datagram", logging.DatagramFields(log, dst, probe)...)

	w := &Sweep{
		scanner: s,
		ctx:     ctx,
		conn:    conn,
		log:     log,
		started: time.Now(),
	}
	w.stopWatch = context.AfterFunc(ctx, func() {
		w.shutdown()
	})

	return w, nil
}

// Scan runs one full sweep and collects every device found
func (s *Scanner) Scan(ctx context.Context) ([]*Device, error) {
	sweep, err := s.Start(ctx)
	if err != nil {
		return nil, err
	}

	devices := make([]*Device, 0)
	for device := range sweep.Devices() {
		devices = append(devices, device)
	}
	return devices, nil
}

// WaitForDevice sweeps until a device whose id, IP or MAC equals match
// replies, and stops as soon as it does.
func (s *Scanner) WaitForDevice(ctx context.Context, match string) (*Device, error) {
	sweep, err := s.Start(ctx)
	if err != nil {
		return nil, err
	}

	for device := range sweep.Devices() {
		if device.DeviceID == match || device.IP == match || strings.EqualFold(device.MAC, match) {
			return device, nil
		}
	}
	return nil, fmt.Errorf("device %s not found within %v", match, s.timeout)
}

func (s *Scanner) decodeOptions() decodeOptions {
	return decodeOptions{
		verifyChecksum: s.verifyChecksum,
		matchPacketID:  s.matchPacketID,
		probeID:        packet.DefaultID,
	}
}

// Sweep is one probe's worth of replies. It owns the socket until the
// timeout elapses, the context ends, or the consumer stops iterating.
type Sweep struct {
	scanner   *Scanner
	ctx       context.Context
	conn      net.PacketConn
	log       *zap.Logger
	started   time.Time
	stopWatch func() bool

	consumed  atomic.Bool
	closeOnce sync.Once
	closeErr  error

	datagrams atomic.Int64
	decoded   atomic.Int64
}

// Devices returns the devices decoded from replies as they arrive. The
// sequence is single-use; ranging over it a second time yields nothing.
// Breaking out of the loop closes the socket.
func (w *Sweep) Devices() iter.Seq[*Device] {
	return func(yield func(*Device) bool) {
		if !w.consumed.CompareAndSwap(false, true) {
			return
		}
		defer w.Close()

		opts := w.scanner.decodeOptions()
		deadline := time.Now().Add(w.scanner.timeout)
		buf := make([]byte, maxDatagramSize)

		for w.ctx.Err() == nil {
			now := time.Now()
			if !now.Before(deadline) {
				return
			}
			wait := min(w.scanner.pollInterval, deadline.Sub(now))
			if err := w.conn.SetReadDeadline(now.Add(wait)); err != nil {
				return
			}

			n, from, err := w.conn.ReadFrom(buf)
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				var netErr net.Error
				if !errors.As(err, &netErr) || !netErr.Timeout() {
					w.log.Debug("Read failed", zap.Error(err))
					if !w.pause(time.Until(now.Add(wait))) {
						return
					}
				}
				continue
			}

			reply := decodeReply(buf[:n], from, w.scanner.kx, opts)
			w.observe(reply, buf[:n])

			if reply.OK() && !yield(reply.Device) {
				return
			}
		}
	}
}

// pause waits out the rest of a poll window after a failed read so a
// persistent socket error does not spin the loop. It reports false when the
// context ended first.
func (w *Sweep) pause(d time.Duration) bool {
	if d <= 0 {
		return w.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.ctx.Done():
		return false
	}
}

func (w *Sweep) observe(r Reply, data []byte) {
	w.datagrams.Add(1)
	w.scanner.metrics.observe(r)
	if w.scanner.onReply != nil {
		w.scanner.onReply(r)
	}

	if r.OK() {
		w.decoded.Add(1)
		w.log.Info("Device discovered",
			zap.String("device_model", r.Device.DeviceModel),
			zap.String("device_type", r.Device.DeviceType),
			zap.String("address", r.Device.Address()),
		)
		return
	}

	fields := append(logging.DatagramFields(w.log, r.From, data),
		zap.String("reason", string(r.Reason)),
		zap.Error(r.Err),
	)
	w.log.Debug("Reply dropped", fields...)
}

// Close releases the socket. It is safe to call more than once.
func (w *Sweep) Close() error {
	if w.stopWatch != nil {
		w.stopWatch()
	}
	return w.shutdown()
}

func (w *Sweep) shutdown() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.conn.Close()
		elapsed := time.Since(w.started)
		w.scanner.metrics.scanFinished(elapsed)
		w.log.Info("Discovery finished",
			zap.Duration("elapsed", elapsed),
			zap.Int64("datagrams", w.datagrams.Load()),
			zap.Int64("devices", w.decoded.Load()),
		)
	})
	return w.closeErr
}

// LocalAddr returns the address the sweep socket is bound to
func (w *Sweep) LocalAddr() net.Addr {
	return w.conn.LocalAddr()
}
