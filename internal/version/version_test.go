package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func withVersion(t *testing.T, version, commit string) {
	t.Helper()
	oldVersion, oldCommit := Version, Commit
	Version, Commit = version, commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })
}

func TestApplyBuildSettings(t *testing.T) {
	tests := []struct {
		name        string
		settings    []debug.BuildSetting
		wantVersion string
		wantCommit  string
	}{
		{
			name: "clean checkout",
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef"},
				{Key: "vcs.time", Value: "2026-03-14T09:26:53Z"},
				{Key: "vcs.modified", Value: "false"},
			},
			wantVersion: "dev-20260314",
			wantCommit:  "0123456",
		},
		{
			name: "dirty tree",
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "abc"},
				{Key: "vcs.modified", Value: "true"},
			},
			wantVersion: "",
			wantCommit:  "abc-dirty",
		},
		{
			name:        "no vcs info",
			settings:    nil,
			wantVersion: "",
			wantCommit:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withVersion(t, "", "")
			applyBuildSettings(tt.settings)
			if Version != tt.wantVersion {
				t.Errorf("Version = %q, want %q", Version, tt.wantVersion)
			}
			if Commit != tt.wantCommit {
				t.Errorf("Commit = %q, want %q", Commit, tt.wantCommit)
			}
		})
	}
}

func TestApplyBuildSettings_KeepsLdflags(t *testing.T) {
	withVersion(t, "v1.0.0", "deadbee")
	applyBuildSettings([]debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789"}})

	if Version != "v1.0.0" || Commit != "deadbee" {
		t.Errorf("ldflags values overwritten: %s", Full())
	}
}

func TestFull(t *testing.T) {
	withVersion(t, "v0.3.0", "abc1234")
	if got, want := Full(), "v0.3.0 (commit: abc1234)"; got != want {
		t.Errorf("Full() = %q, want %q", got, want)
	}
}

func TestPlatform(t *testing.T) {
	if !strings.HasSuffix(Platform(), runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("Platform() = %q, want GOOS/GOARCH suffix", Platform())
	}
}
