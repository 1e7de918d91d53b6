package config_test

import (
	"testing"

	"netjam/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.BufferSize != 128 {
		t.Errorf("expected buffer size 128, got %d", cfg.BufferSize)
	}
	if cfg.Codec != "pcm" {
		t.Errorf("expected codec pcm, got %q", cfg.Codec)
	}
	if cfg.InputDeviceID != -1 || cfg.OutputDeviceID != -1 {
		t.Error("expected device IDs to default to -1")
	}
	if !cfg.EncryptionEnabled {
		t.Error("expected encryption enabled by default")
	}
	if len(cfg.StunServers) == 0 {
		t.Error("expected at least one default stun server")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg := config.Config{
		Username:          "alice",
		InputDeviceID:     2,
		OutputDeviceID:     3,
		BufferSize:        256,
		Codec:             "opus",
		StunServers:       []string{"stun.example.com:3478"},
		SignalingServer:   "wss://signal.example.com/ws",
		EncryptionEnabled: true,
	}

	if err := config.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := config.Load()
	if loaded.Username != cfg.Username || loaded.BufferSize != cfg.BufferSize {
		t.Fatalf("loaded = %+v, want %+v", loaded, cfg)
	}
}

func TestLoadFallsBackToDefaultOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg := config.Load()
	if cfg.BufferSize != config.Default().BufferSize {
		t.Fatalf("expected default config when no file exists, got %+v", cfg)
	}
}

func TestValidateRejectsBadBufferSize(t *testing.T) {
	cfg := config.Default()
	cfg.BufferSize = 100
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid buffer size")
	}
}

func TestValidateRejectsBadSignalingURL(t *testing.T) {
	cfg := config.Default()
	cfg.SignalingServer = "http://example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-ws signaling server url")
	}
}
