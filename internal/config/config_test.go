package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.PollInterval() != 15*time.Second {
		t.Fatalf("poll interval = %s", cfg.PollInterval())
	}
	if cfg.ClampLimit(0) != 20 || cfg.ClampLimit(500) != 200 || cfg.ClampLimit(5) != 5 {
		t.Fatalf("unexpected clamp behaviour")
	}
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("notifications:\n  poll_interval_seconds: 30\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.PollInterval() != 30*time.Second || cfg.Identifiers.Width != 3 || cfg.Notifications.ListLimit != 20 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"width":   "identifiers:\n  width: 0\n",
		"limit":   "notifications:\n  list_limit: 500\n",
		"webhook": "webhooks:\n  - url: not-a-url\n    role: chef_section\n",
		"role":    "webhooks:\n  - url: http://localhost/x\n    role: admin\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config for empty workspace, got %+v %v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fieldline.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.PhotoDir("/data"); got != filepath.Join("/data", "photos") {
		t.Fatalf("photo dir = %s", got)
	}
}
