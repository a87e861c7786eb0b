package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := Default()
	if c.Server.Addr != d.Server.Addr || c.Sessions.CodeLength != d.Sessions.CodeLength {
		t.Errorf("missing file did not yield defaults: %+v", c)
	}
}

func TestLoadParsesYAMLAndKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("server:\n  addr: \":9000\"\nphases:\n  vote_ms: 30000\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":9000" {
		t.Errorf("addr = %q, want :9000", c.Server.Addr)
	}
	if c.Phases.VoteMS != 30000 {
		t.Errorf("vote_ms = %d, want 30000", c.Phases.VoteMS)
	}
	if c.Phases.PlaceMS != Default().Phases.PlaceMS {
		t.Errorf("place_ms = %d, want the default", c.Phases.PlaceMS)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed yaml loaded without error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("CLIENT_ORIGIN", "https://game.example")
	t.Setenv("ROOM_TTL_MS", "120000")
	t.Setenv("ENABLE_DEBUG_CONTROLS", "true")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":4000" {
		t.Errorf("addr = %q, want :4000", c.Server.Addr)
	}
	if c.Server.AllowedOrigin != "https://game.example" {
		t.Errorf("origin = %q", c.Server.AllowedOrigin)
	}
	if c.TTL() != 2*time.Minute {
		t.Errorf("TTL = %v, want 2m", c.TTL())
	}
	if !c.Debug.EnableControls {
		t.Error("debug controls not enabled from env")
	}
}

func TestDurationsConversion(t *testing.T) {
	c := Default()
	d := c.Durations()
	if d.Place != 15*time.Second || d.Vote != time.Minute || d.Drift != time.Second {
		t.Errorf("Durations = %+v", d)
	}
}
