package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/trackbind/internal/scene"
	"github.com/banshee-data/trackbind/internal/serialmux"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &Config{}

	if got := cfg.GetSerialPort(); got != "/dev/ttyUSB0" {
		t.Errorf("GetSerialPort() = %q", got)
	}
	want := serialmux.PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}
	if got := cfg.GetSerialOptions(); got != want {
		t.Errorf("GetSerialOptions() = %+v, want %+v", got, want)
	}
	if got := cfg.GetJournalPath(); got != "trackbind.db" {
		t.Errorf("GetJournalPath() = %q", got)
	}
	if got := cfg.GetListen(); got != ":8080" {
		t.Errorf("GetListen() = %q", got)
	}
	if got := cfg.GetFixturesPath(); got != "fixtures.jsonl" {
		t.Errorf("GetFixturesPath() = %q", got)
	}
	if got := cfg.GetReplayInterval(); got != 100*time.Millisecond {
		t.Errorf("GetReplayInterval() = %v", got)
	}
	if got := cfg.GetStatusInterval(); got != 30*time.Second {
		t.Errorf("GetStatusInterval() = %v", got)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, "trackbind.json", `{
  "templates": [{"label": "cat", "asset": "cat.glb"}, {"label": "dog"}],
  "serial_port": "/dev/ttyACM0",
  "serial_options": {"baud_rate": 57600, "parity": "even"},
  "status_interval": "5s"
}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	wantTemplates := []scene.Template{{Label: "cat", Asset: "cat.glb"}, {Label: "dog"}}
	if len(cfg.Templates) != 2 || cfg.Templates[0] != wantTemplates[0] || cfg.Templates[1] != wantTemplates[1] {
		t.Errorf("Templates = %+v, want %+v", cfg.Templates, wantTemplates)
	}
	if got := cfg.GetSerialPort(); got != "/dev/ttyACM0" {
		t.Errorf("GetSerialPort() = %q", got)
	}
	opts := cfg.GetSerialOptions()
	if opts.BaudRate != 57600 || opts.Parity != "E" || opts.DataBits != 8 {
		t.Errorf("GetSerialOptions() = %+v", opts)
	}
	if got := cfg.GetStatusInterval(); got != 5*time.Second {
		t.Errorf("GetStatusInterval() = %v", got)
	}
	// Omitted fields keep defaults.
	if got := cfg.GetJournalPath(); got != "trackbind.db" {
		t.Errorf("GetJournalPath() = %q", got)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "cfg.yaml", `{}`, ".json extension"},
		{"bad json", "cfg.json", `{"templates": [`, "failed to parse"},
		{"empty label", "cfg.json", `{"templates": [{"label": " "}]}`, "label is required"},
		{"duplicate label", "cfg.json", `{"templates": [{"label": "a"}, {"label": "a"}]}`, "duplicate label"},
		{"bad duration", "cfg.json", `{"status_interval": "soon"}`, "invalid status_interval"},
		{"negative duration", "cfg.json", `{"replay_interval": "-1s"}`, "must be positive"},
		{"bad parity", "cfg.json", `{"serial_options": {"parity": "mark"}}`, "serial_options"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestLoadAppliesEnv(t *testing.T) {
	path := writeConfig(t, "trackbind.json", `{"serial_port": "/dev/ttyS0", "listen": ":9000"}`)
	t.Setenv("TRACKBIND_SERIAL_PORT", "/dev/ttyUSB3")
	t.Setenv("TRACKBIND_JOURNAL_PATH", "/var/lib/trackbind/journal.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.GetSerialPort(); got != "/dev/ttyUSB3" {
		t.Errorf("GetSerialPort() = %q, want env override", got)
	}
	if got := cfg.GetJournalPath(); got != "/var/lib/trackbind/journal.db" {
		t.Errorf("GetJournalPath() = %q, want env override", got)
	}
	if got := cfg.GetListen(); got != ":9000" {
		t.Errorf("GetListen() = %q, want file value", got)
	}
}

func TestDefaultsFileLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("Load(%s): %v", DefaultConfigPath, err)
	}
	if len(cfg.Templates) == 0 {
		t.Error("defaults file should register at least one template")
	}
}
