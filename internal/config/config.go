// Package config loads runtime configuration from flags, environment
// variables, and an optional config file, following the cobra/viper
// layering the rest of the ecosystem uses for CLI tools.
package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the resolved set of options a gateway process needs to bind
// its listeners (spec §6).
type Config struct {
	Serial     bool   `mapstructure:"serial"`
	Ethernet   bool   `mapstructure:"ethernet"`
	Port       uint16 `mapstructure:"port"`
	EthPort    int    `mapstructure:"ethPort"`
	SerialPort string `mapstructure:"serialPort"`
	Debug      bool   `mapstructure:"debug"`
}

// BindFlags registers the configuration surface on cmd's flag set and
// wires it into v, so REV_* environment variables and a config file read
// by Load can override flag defaults without cobra needing to know about
// either.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.Bool("serial", false, "enable the serial port listener")
	flags.Bool("ethernet", true, "enable the TCP listener")
	flags.Uint16("port", 8080, "TCP port for the external (WebSocket) surface")
	flags.Int("eth-port", 9000, "TCP port on which Firmata-over-TCP devices connect")
	flags.String("serial-port", "", "serial port path to bind (autodetected when empty)")
	flags.Bool("debug", false, "enable debug-level logging")

	v.BindPFlag("serial", flags.Lookup("serial"))
	v.BindPFlag("ethernet", flags.Lookup("ethernet"))
	v.BindPFlag("port", flags.Lookup("port"))
	v.BindPFlag("ethPort", flags.Lookup("eth-port"))
	v.BindPFlag("serialPort", flags.Lookup("serial-port"))
	v.BindPFlag("debug", flags.Lookup("debug"))

	v.SetEnvPrefix("rev")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Load resolves a Config from v, optionally reading a config file named
// by path first. A missing path is not an error: flags and environment
// variables alone are a valid configuration.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
