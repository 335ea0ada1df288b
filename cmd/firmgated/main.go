// Command firmgated runs the device gateway: it accepts Firmata-speaking
// devices over TCP and serial, tracks them in a roster, and republishes
// their discrete state to anything subscribed on the outward event bus.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/daftfox/rev/internal/config"
	"github.com/daftfox/rev/internal/device"
	"github.com/daftfox/rev/internal/eventbus"
	"github.com/daftfox/rev/internal/listener"
	"github.com/daftfox/rev/internal/repository"
	"github.com/daftfox/rev/internal/roster"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Fatal("firmgated exited with error")
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "firmgated",
		Short: "Gateway process bridging Firmata devices onto a single roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "path to a config file")
	config.BindFlags(cmd, v)

	return cmd
}

func run(parent context.Context, cfg config.Config) error {
	log := logrus.New()
	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New()
	devices := roster.New(bus)
	repo := repository.NewInMemory()

	bus.OnJoined(func(data interface{}) {
		snap, ok := data.(device.Snapshot)
		if !ok {
			return
		}
		if err := repo.Upsert(snap.ID, snap.Name, snap.Type); err != nil {
			log.WithError(err).Warn("failed to persist device record")
		}
	})
	bus.OnLeft(func(data interface{}) {
		log.WithField("identity", data).Info("device left the roster")
	})

	lst := listener.New(devices, log, device.Options{
		OnConnectFailure: func(identity string, err error) {
			log.WithError(err).WithField("identity", identity).Warn("device failed to identify")
		},
	})

	// The WebSocket surface itself lives outside this gateway's scope, but
	// the port it will bind is already a resolved, logged configuration
	// value so that layer has a concrete home to plug into.
	log.WithField("port", cfg.Port).Info("external WebSocket surface port configured")

	errCh := make(chan error, 2)
	if cfg.Ethernet {
		addr := ":" + strconv.Itoa(cfg.EthPort)
		go func() { errCh <- lst.ServeTCP(ctx, addr) }()
	}
	if cfg.Serial {
		go func() { errCh <- lst.ServeSerial(ctx, 57600, cfg.SerialPort) }()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

