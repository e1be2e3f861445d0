package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate runs Load from an empty directory so no stray .env is picked up.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
	for _, k := range []string{"CONFIG_FILE", "MODULE_NAME", "MODULE_ID", "ARCHIVE_ROOT", "BUS_ADDRESS", "TZ", "FEED_URL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("MODULE_NAME", "feedhandler")
	t.Setenv("MODULE_ID", "vix")
	t.Setenv("ARCHIVE_ROOT", "/data/bin")
	t.Setenv("TZ", "Europe/London")
	t.Setenv("REPLAY_RATE_MS", "250")
	t.Setenv("HEARTBEAT_INTERVAL", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BusAddress != "feedhandler.vix" {
		t.Errorf("BusAddress = %q, expected feedhandler.vix", cfg.BusAddress)
	}
	if cfg.Location == nil || cfg.Location.String() != "Europe/London" {
		t.Errorf("Location = %v", cfg.Location)
	}
	if cfg.ReplayRate() != 250*time.Millisecond {
		t.Errorf("ReplayRate = %v", cfg.ReplayRate())
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.HeartbeatInterval)
	}
	if cfg.FileSuffix != ".bin" || cfg.StatusAmberSeconds != 15 || cfg.StatusRedSeconds != 25 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	isolate(t)
	t.Setenv("MODULE_NAME", "feedhandler")
	t.Setenv("ARCHIVE_ROOT", "/data/bin")

	_, err := Load()
	if err == nil {
		t.Fatal("Load succeeded without MODULE_ID")
	}
	if !strings.Contains(err.Error(), "ModuleID") {
		t.Errorf("error %q does not name ModuleID", err)
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "feedplayer.yml")
	yml := `
module_name: feedplayer
module_id: replay1
archive_root: /data/bin
replay_start: 1457334000
replay_finish: 1457420400
replay_rate_ms: 100
heartbeat_interval: 30s
`
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MODULE_ID", "replay2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ModuleName != "feedplayer" || cfg.ModuleID != "replay2" {
		t.Errorf("module = %s/%s, expected feedplayer/replay2", cfg.ModuleName, cfg.ModuleID)
	}
	if cfg.ReplayStart != 1457334000 || cfg.ReplayFinish != 1457420400 || cfg.ReplayRateMS != 100 {
		t.Errorf("replay window = %d..%d @%d", cfg.ReplayStart, cfg.ReplayFinish, cfg.ReplayRateMS)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.HeartbeatInterval)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad tz", "TZ", "Mars/Olympus"},
		{"bad url", "FEED_URL", "not a url"},
		{"bad suffix", "FILE_SUFFIX", "bin"},
		{"red before amber", "STATUS_RED_SECONDS", "5"},
		{"bad duration", "POLL_INTERVAL", "soon"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			isolate(t)
			t.Setenv("MODULE_NAME", "feedhandler")
			t.Setenv("MODULE_ID", "vix")
			t.Setenv("ARCHIVE_ROOT", "/data/bin")
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Errorf("Load accepted %s=%q", tc.key, tc.val)
			}
		})
	}
}
