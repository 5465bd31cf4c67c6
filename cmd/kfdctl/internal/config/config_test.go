package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadValidConfigAppliesDefaults(t *testing.T) {
	cfgPath := writeConfig(t, `
interface:
  data_pin: 17
  sense_pin: 27
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if *cfg.Interface.DataPin != 17 {
		t.Fatalf("expected data_pin 17, got %d", *cfg.Interface.DataPin)
	}
	if cfg.Interface.TxKilobaud != 4 || cfg.Interface.RxKilobaud != 4 {
		t.Fatalf("expected default 4 kbaud both ways, got tx=%d rx=%d", cfg.Interface.TxKilobaud, cfg.Interface.RxKilobaud)
	}
	if cfg.Interface.StopBitPolarity != "busy_then_idle" {
		t.Fatalf("expected default stop bit policy busy_then_idle, got %q", cfg.Interface.StopBitPolarity)
	}
	if cfg.Interface.ReceiveTimeoutMs != 5000 {
		t.Fatalf("expected default receive timeout 5000ms, got %d", cfg.Interface.ReceiveTimeoutMs)
	}
}

func TestLoadFullConfigOverridesDefaults(t *testing.T) {
	cfgPath := writeConfig(t, `
interface:
  data_pin: 5
  sense_pin: 6
  tx_kbaud: 9
  rx_kbaud: 9
  stop_bit_polarity: idle
  receive_timeout_ms: 2500
session:
  post_ready_delay_us: 1000
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Interface.TxKilobaud != 9 {
		t.Fatalf("expected tx_kbaud 9, got %d", cfg.Interface.TxKilobaud)
	}
	if cfg.Interface.StopBitPolarity != "idle" {
		t.Fatalf("expected stop_bit_polarity idle, got %q", cfg.Interface.StopBitPolarity)
	}
	if cfg.Session.PostReadyDelayUs != 1000 {
		t.Fatalf("expected post_ready_delay_us 1000, got %d", cfg.Session.PostReadyDelayUs)
	}
}

func TestLoadFailsWithoutDataPin(t *testing.T) {
	cfgPath := writeConfig(t, `
interface:
  sense_pin: 27
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "config.interface.data_pin is required") {
		t.Fatalf("expected missing data_pin error, got %v", err)
	}
}

func TestLoadFailsWhenPinsCollide(t *testing.T) {
	cfgPath := writeConfig(t, `
interface:
  data_pin: 17
  sense_pin: 17
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected pin collision error, got %v", err)
	}
}

func TestLoadFailsOnUnknownField(t *testing.T) {
	cfgPath := writeConfig(t, `
interface:
  data_pin: 17
  sense_pin: 27
  bogus_field: true
`)

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatalf("expected error for unknown field, got nil")
	}
}

func TestLoadFailsOnInvalidStopBitPolarity(t *testing.T) {
	cfgPath := writeConfig(t, `
interface:
  data_pin: 17
  sense_pin: 27
  stop_bit_polarity: sideways
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "stop_bit_polarity must be") {
		t.Fatalf("expected stop_bit_polarity error, got %v", err)
	}
}

func TestLoadFailsOnOutOfRangeBaud(t *testing.T) {
	cfgPath := writeConfig(t, `
interface:
  data_pin: 17
  sense_pin: 27
  tx_kbaud: 20
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "tx_kbaud must be between") {
		t.Fatalf("expected tx_kbaud range error, got %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}
