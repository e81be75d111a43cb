package watch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/plugscan/internal/discovery"
	"github.com/muurk/plugscan/internal/render"
)

const tickInterval = 100 * time.Millisecond

// Starter begins one discovery sweep; *discovery.Scanner implements it
type Starter interface {
	Start(ctx context.Context) (*discovery.Sweep, error)
}

// Options configures the live view
type Options struct {
	Timeout time.Duration // sweep timeout, drives the progress bar
	Mask    bool          // mask sensitive fields in the detail view
}

// Messages for async operations
type sweepStartedMsg struct {
	id     int
	feed   <-chan *discovery.Device
	cancel context.CancelFunc
}

type deviceFoundMsg struct {
	id     int
	device *discovery.Device
}

type sweepDoneMsg struct {
	id  int
	err error
}

type tickMsg time.Time

// keyMap defines key bindings for the live view
type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Detail key.Binding
	Back   key.Binding
	Rescan key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Detail, k.Rescan, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Detail, k.Back},
		{k.Rescan, k.Quit},
	}
}

func newKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Detail: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "details"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc", "backspace"),
			key.WithHelp("esc", "back"),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// deviceItem wraps a Device for use with bubbles/list
type deviceItem struct {
	device *discovery.Device
}

func (d deviceItem) FilterValue() string {
	return d.device.DeviceModel + " " + d.device.Address()
}

// deviceDelegate renders a device as a two-line list entry
type deviceDelegate struct{}

func (deviceDelegate) Height() int { return 2 }

func (deviceDelegate) Spacing() int { return 1 }

func (deviceDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (deviceDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	di, ok := item.(deviceItem)
	if !ok {
		return
	}
	d := di.device

	title := fmt.Sprintf("%s  %s", d.DeviceModel, d.Address())
	desc := fmt.Sprintf("    %s · %s", d.DeviceType, d.DiscoveredAt.Format(time.TimeOnly))

	if index == m.Index() {
		title = SelectedItemStyle.Render("→ " + title)
	} else {
		title = ItemStyle.Render("  " + title)
	}
	fmt.Fprint(w, title+"\n"+DescriptionStyle.Render(desc))
}

// Model is the live view state
type Model struct {
	ctx     context.Context
	stop    context.CancelFunc
	scanner Starter
	opts    Options

	sweepID int
	feed    <-chan *discovery.Device
	cancel  context.CancelFunc
	seen    map[string]bool

	// Discovery state
	Scanning  bool
	Detail    bool
	Err       error
	StartedAt time.Time
	Now       time.Time

	// UI state
	Width    int
	Height   int
	List     list.Model
	Spinner  spinner.Model
	Progress progress.Model
	Help     help.Model
	Keys     keyMap
}

// New creates the live view. Sweeps run under ctx; quitting cancels them.
func New(ctx context.Context, scanner Starter, opts Options) Model {
	ctx, stop := context.WithCancel(ctx)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	devices := list.New([]list.Item{}, deviceDelegate{}, DefaultWidth-4, DefaultHeight-12)
	devices.Title = "Discovered Devices"
	devices.Styles.Title = TitleStyle
	devices.SetShowStatusBar(false)
	devices.SetFilteringEnabled(false)
	devices.SetShowHelp(false)

	return Model{
		ctx:       ctx,
		stop:      stop,
		scanner:   scanner,
		opts:      opts,
		seen:      make(map[string]bool),
		Scanning:  true,
		StartedAt: time.Now(),
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		List:      devices,
		Spinner:   s,
		Progress:  bar,
		Help:      help.New(),
		Keys:      newKeyMap(),
	}
}

// Init starts the first sweep
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.startSweepCmd(m.sweepID), m.Spinner.Tick)
}

// Devices returns the devices found by the most recent sweep, in list order
func (m Model) Devices() []*discovery.Device {
	items := m.List.Items()
	out := make([]*discovery.Device, 0, len(items))
	for _, item := range items {
		if di, ok := item.(deviceItem); ok {
			out = append(out, di.device)
		}
	}
	return out
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.List.SetSize(max(msg.Width-4, 0), max(msg.Height-12, 2))
		return m, nil

	case sweepStartedMsg:
		if msg.id != m.sweepID {
			msg.cancel()
			return m, nil
		}
		m.feed = msg.feed
		m.cancel = msg.cancel
		return m, tea.Batch(waitForDevice(msg.id, msg.feed), tick())

	case deviceFoundMsg:
		if msg.id != m.sweepID {
			return m, nil
		}
		cmd := m.addDevice(msg.device)
		return m, tea.Batch(cmd, waitForDevice(msg.id, m.feed))

	case sweepDoneMsg:
		if msg.id != m.sweepID {
			return m, nil
		}
		m.Scanning = false
		m.Err = msg.err
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		return m, nil

	case tickMsg:
		m.Now = time.Time(msg)
		if m.Scanning {
			return m, tick()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Quit):
		m.stop()
		m.cancel = nil
		m.Scanning = false
		return m, tea.Quit

	case m.Detail && key.Matches(msg, m.Keys.Back):
		m.Detail = false
		return m, nil

	case key.Matches(msg, m.Keys.Detail):
		if m.List.SelectedItem() != nil {
			m.Detail = !m.Detail
		}
		return m, nil

	case key.Matches(msg, m.Keys.Rescan):
		if m.Scanning {
			return m, nil
		}
		m.Detail = false
		m.Err = nil
		m.seen = make(map[string]bool)
		cmd := m.List.SetItems([]list.Item{})
		m.sweepID++
		m.Scanning = true
		m.StartedAt = time.Now()
		return m, tea.Batch(cmd, m.startSweepCmd(m.sweepID), m.Spinner.Tick)
	}

	// Let the list handle up/down navigation
	var cmd tea.Cmd
	m.List, cmd = m.List.Update(msg)
	return m, cmd
}

func (m Model) startSweepCmd(id int) tea.Cmd {
	parent, scanner := m.ctx, m.scanner
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(parent)
		sweep, err := scanner.Start(ctx)
		if err != nil {
			cancel()
			return sweepDoneMsg{id: id, err: err}
		}

		feed := make(chan *discovery.Device)
		go func() {
			defer close(feed)
			for device := range sweep.Devices() {
				select {
				case feed <- device:
				case <-ctx.Done():
					return
				}
			}
		}()
		return sweepStartedMsg{id: id, feed: feed, cancel: cancel}
	}
}

func waitForDevice(id int, feed <-chan *discovery.Device) tea.Cmd {
	return func() tea.Msg {
		device, ok := <-feed
		if !ok {
			return sweepDoneMsg{id: id}
		}
		return deviceFoundMsg{id: id, device: device}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// deviceKey identifies a device across replies; plugs may answer twice
func deviceKey(d *discovery.Device) string {
	switch {
	case d.DeviceID != "":
		return "id:" + d.DeviceID
	case d.MAC != "":
		return "mac:" + strings.ToUpper(d.MAC)
	default:
		return "addr:" + d.Address()
	}
}

func (m *Model) addDevice(d *discovery.Device) tea.Cmd {
	k := deviceKey(d)
	if m.seen[k] {
		return nil
	}
	m.seen[k] = true
	return m.List.InsertItem(len(m.List.Items()), deviceItem{device: d})
}

// progressFraction is the share of the sweep timeout already elapsed
func (m Model) progressFraction() float64 {
	if m.opts.Timeout <= 0 {
		return 1
	}
	now := m.Now
	if now.IsZero() || now.Before(m.StartedAt) {
		now = m.StartedAt
	}
	f := float64(now.Sub(m.StartedAt)) / float64(m.opts.Timeout)
	return min(max(f, 0), 1)
}

// View renders the live view
func (m Model) View() string {
	var content string
	if m.Detail {
		content = m.renderDetail()
	} else {
		content = lipgloss.JoinVertical(lipgloss.Left, m.renderStatus(), "", m.renderDevices())
	}
	return RenderApplicationContainer(content, m.Help.View(m.Keys), m.Width, m.Height)
}

func (m Model) renderStatus() string {
	if m.Scanning {
		title := TitleStyle.Render(fmt.Sprintf("%s SEARCHING FOR PLUGS", m.Spinner.View()))
		elapsed := SubtitleStyle.Render(fmt.Sprintf("Elapsed: %s of %s",
			m.elapsed().Round(100*time.Millisecond), m.opts.Timeout))
		return lipgloss.JoinVertical(lipgloss.Left, title, m.Progress.ViewAs(m.progressFraction()), elapsed)
	}
	if m.Err != nil {
		return ErrorStyle.Render("✗ Scan failed: " + m.Err.Error())
	}
	return render.Summary(len(m.List.Items()))
}

func (m Model) elapsed() time.Duration {
	if m.Now.IsZero() || m.Now.Before(m.StartedAt) {
		return 0
	}
	return m.Now.Sub(m.StartedAt)
}

func (m Model) renderDevices() string {
	if len(m.List.Items()) == 0 {
		if m.Scanning {
			return SubtitleStyle.Render("Waiting for replies...")
		}
		var b strings.Builder
		b.WriteString(WarningStyle.Render("⚠ No plugs answered the probe"))
		b.WriteString("\n\n")
		b.WriteString("  Troubleshooting:\n")
		b.WriteString("    • Ensure the plug is powered on and joined to this network\n")
		b.WriteString("    • Allow inbound UDP from port 20002 in your firewall\n")
		b.WriteString("    • Try a subnet broadcast target, e.g. --target 192.168.1.255\n")
		return b.String()
	}
	return m.List.View()
}

func (m Model) renderDetail() string {
	item, ok := m.List.SelectedItem().(deviceItem)
	if !ok {
		return ""
	}

	fields := render.Fields(item.device)
	if m.opts.Mask {
		fields = render.MaskFields(fields)
	}

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, DetailKeyStyle.Render(f.Key)+ItemStyle.Render(f.Value))
	}
	return DetailBoxStyle.Render(strings.Join(lines, "\n"))
}

// Run shows the live view until the user quits and returns the devices found
// by the last sweep.
func Run(ctx context.Context, scanner Starter, opts Options) ([]*discovery.Device, error) {
	p := tea.NewProgram(New(ctx, scanner, opts), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("live view failed: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return nil, fmt.Errorf("unexpected model type %T", final)
	}
	m.stop()
	return m.Devices(), m.Err
}
