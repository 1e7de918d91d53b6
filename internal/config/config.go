// Package config manages persistent user preferences for netjam. Settings
// are stored as TOML at os.UserConfigDir()/netjam/config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// validBufferSizes are the frame sizes the audio pipeline accepts.
var validBufferSizes = map[int]bool{32: true, 64: true, 128: true, 256: true}

// Config holds all persistent user preferences.
type Config struct {
	Username         string   `toml:"username"`
	InputDeviceID    int      `toml:"input_device_id"`
	OutputDeviceID   int      `toml:"output_device_id"`
	BufferSize       int      `toml:"buffer_size"`
	Codec            string   `toml:"codec"`
	StunServers      []string `toml:"stun_servers"`
	SignalingServer  string   `toml:"signaling_server"`
	EncryptionEnabled bool    `toml:"encryption_enabled"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		InputDeviceID:     -1,
		OutputDeviceID:    -1,
		BufferSize:        128,
		Codec:             "pcm",
		StunServers:       []string{"stun.l.google.com:19302"},
		SignalingServer:   "ws://localhost:8080/ws",
		EncryptionEnabled: true,
	}
}

// Validate checks fields that would otherwise misconfigure the audio
// pipeline or signaling transport in ways hard to diagnose later.
func (c Config) Validate() error {
	if !validBufferSizes[c.BufferSize] {
		return fmt.Errorf("config: buffer_size %d is not one of 32, 64, 128, 256", c.BufferSize)
	}
	if !strings.HasPrefix(c.SignalingServer, "ws://") && !strings.HasPrefix(c.SignalingServer, "wss://") {
		return fmt.Errorf("config: signaling_server %q must start with ws:// or wss://", c.SignalingServer)
	}
	return nil
}

// Path returns the absolute path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "netjam", "config.toml"), nil
}

// Load reads the config file and returns it. If the file is missing,
// unreadable, or fails validation, the default config is returned rather
// than an error — a broken config file should never stop the program from
// starting.
func Load() Config {
	path, err := Path()
	if err != nil {
		return Default()
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Default()
	}
	if err := cfg.Validate(); err != nil {
		return Default()
	}
	return cfg
}

// Save writes cfg to disk, creating the directory if needed.
func Save(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
