package config

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestLoadAppliesFlagDefaults(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	BindFlags(cmd, v)

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ethernet != true {
		t.Fatalf("expected ethernet enabled by default, got %+v", cfg)
	}
	if cfg.EthPort != 9000 {
		t.Fatalf("expected default eth port 9000, got %d", cfg.EthPort)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default WS surface port 8080, got %d", cfg.Port)
	}
	if cfg.SerialPort != "" {
		t.Fatalf("expected serial port autodetect by default, got %q", cfg.SerialPort)
	}
	if cfg.Serial || cfg.Debug {
		t.Fatalf("expected serial/debug disabled by default, got %+v", cfg)
	}
}

func TestLoadHonorsOverriddenFlag(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	BindFlags(cmd, v)

	if err := cmd.Flags().Set("serial", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cmd.Flags().Set("eth-port", "9100"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cmd.Flags().Set("port", "8443"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cmd.Flags().Set("serial-port", "/dev/ttyUSB0"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Serial {
		t.Fatal("expected serial enabled after flag override")
	}
	if cfg.EthPort != 9100 {
		t.Fatalf("expected eth port 9100, got %d", cfg.EthPort)
	}
	if cfg.Port != 8443 {
		t.Fatalf("expected WS surface port 8443, got %d", cfg.Port)
	}
	if cfg.SerialPort != "/dev/ttyUSB0" {
		t.Fatalf("expected serial port override, got %q", cfg.SerialPort)
	}
}
