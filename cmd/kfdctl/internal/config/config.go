package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape for an interface definition: which GPIO pins
// drive DATA/SENSE and what timing the codec and session should use.
type Config struct {
	Interface InterfaceConfig `yaml:"interface"`
	Session   SessionCfg      `yaml:"session"`
}

type InterfaceConfig struct {
	DataPin          *int   `yaml:"data_pin"`
	SensePin         *int   `yaml:"sense_pin"`
	TxKilobaud       uint8  `yaml:"tx_kbaud"`
	RxKilobaud       uint8  `yaml:"rx_kbaud"`
	StopBitPolarity  string `yaml:"stop_bit_polarity"` // "busy_then_idle" or "idle"
	ReceiveTimeoutMs int    `yaml:"receive_timeout_ms"`
}

type SessionCfg struct {
	PostReadyDelayUs int `yaml:"post_ready_delay_us"`
}

// Load reads, parses, resolves, and validates the config at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Interface.TxKilobaud == 0 {
		c.Interface.TxKilobaud = 4
	}
	if c.Interface.RxKilobaud == 0 {
		c.Interface.RxKilobaud = 4
	}
	if c.Interface.StopBitPolarity == "" {
		c.Interface.StopBitPolarity = "busy_then_idle"
	}
	if c.Interface.ReceiveTimeoutMs == 0 {
		c.Interface.ReceiveTimeoutMs = 5000
	}
}

// Validate reports config errors with the config.<section>.<field> prefix
// the CLI's error messages use elsewhere.
func (c *Config) Validate() error {
	if c.Interface.DataPin == nil {
		return fmt.Errorf("config.interface.data_pin is required")
	}
	if *c.Interface.DataPin < 0 {
		return fmt.Errorf("config.interface.data_pin must be >= 0")
	}
	if c.Interface.SensePin == nil {
		return fmt.Errorf("config.interface.sense_pin is required")
	}
	if *c.Interface.SensePin < 0 {
		return fmt.Errorf("config.interface.sense_pin must be >= 0")
	}
	if *c.Interface.DataPin == *c.Interface.SensePin {
		return fmt.Errorf("config.interface.data_pin and sense_pin must differ")
	}

	if c.Interface.TxKilobaud < 1 || c.Interface.TxKilobaud > 9 {
		return fmt.Errorf("config.interface.tx_kbaud must be between 1 and 9")
	}
	if c.Interface.RxKilobaud < 1 || c.Interface.RxKilobaud > 9 {
		return fmt.Errorf("config.interface.rx_kbaud must be between 1 and 9")
	}

	switch strings.ToLower(strings.TrimSpace(c.Interface.StopBitPolarity)) {
	case "busy_then_idle", "idle":
	default:
		return fmt.Errorf("config.interface.stop_bit_polarity must be busy_then_idle or idle, got %q", c.Interface.StopBitPolarity)
	}

	if c.Interface.ReceiveTimeoutMs <= 0 {
		return fmt.Errorf("config.interface.receive_timeout_ms must be > 0")
	}
	if c.Session.PostReadyDelayUs < 0 {
		return fmt.Errorf("config.session.post_ready_delay_us must be >= 0")
	}

	return nil
}
