package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ehrlich-b/teleterm/internal/wire"
)

func TestLoadRelayConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadRelayConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:4144" {
		t.Errorf("expected default listen address, got %q", cfg.ListenAddress)
	}
	if !cfg.AllowsOauth() {
		t.Error("expected oauth allowed by default")
	}
	if !cfg.AllowsLogin("plain") || !cfg.AllowsLogin("recurse_center") {
		t.Error("expected both plain and recurse_center allowed by default")
	}
}

func TestSaveAndLoadRelayConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultRelayConfig()
	cfg.ListenAddress = "0.0.0.0:9999"
	cfg.AllowedLoginMethods = []string{"plain", "recurse_center"}
	uid, gid := 1000, 1000
	cfg.UID = &uid
	cfg.GID = &gid
	cfg.Oauth = map[string]OauthProviderConfig{
		"recurse_center": {
			ClientID: "abc", ClientSecret: "def",
			AuthURL: "https://example.com/authorize", TokenURL: "https://example.com/token",
		},
	}

	if err := SaveRelayConfig(dir, cfg); err != nil {
		t.Fatalf("SaveRelayConfig: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "relay.yaml")); err != nil {
		t.Fatalf("expected relay.yaml on disk: %v", err)
	}

	got, err := LoadRelayConfig(dir)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	if got.ListenAddress != cfg.ListenAddress {
		t.Errorf("ListenAddress = %q, want %q", got.ListenAddress, cfg.ListenAddress)
	}
	if !got.AllowsOauth() {
		t.Error("expected oauth allowed after round trip")
	}
	prov, ok := got.Oauth["recurse_center"]
	if !ok || prov.ClientID != "abc" {
		t.Errorf("oauth provider not round-tripped: %+v", got.Oauth)
	}
	if got.UID == nil || *got.UID != 1000 || got.GID == nil || *got.GID != 1000 {
		t.Errorf("uid/gid not round-tripped: uid=%v gid=%v", got.UID, got.GID)
	}
}

func TestFrameLimitsAppliesOverrides(t *testing.T) {
	cfg := DefaultRelayConfig()
	cfg.MaxFrameLen = 1024
	lim := cfg.FrameLimits()
	if lim.MaxFrameLen != 1024 {
		t.Errorf("expected overridden MaxFrameLen, got %d", lim.MaxFrameLen)
	}
	if lim.MinFrameLen != wire.DefaultMinFrameLen {
		t.Errorf("expected MinFrameLen to still default to %d, got %d", wire.DefaultMinFrameLen, lim.MinFrameLen)
	}
}
