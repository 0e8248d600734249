package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deckbeam/deckbeam/internal/api"
	"github.com/deckbeam/deckbeam/internal/core"
	"github.com/deckbeam/deckbeam/internal/store"
)

var (
	cfgFile string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the deckbeam server",

		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

			config, err := core.NewConfig(cfgFile)
			if err != nil {
				return err
			}

			db, err := store.Open(config.DBPath, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			hub := core.NewHub(logger)

			app := api.New(api.Options{
				Addr:       config.Addr,
				Store:      db,
				Hub:        hub,
				Heartbeat:  time.Duration(config.HeartbeatSeconds) * time.Second,
				BufferSize: config.SessionBufferSize,
				Logger:     logger,
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.Listen(ctx)
		},
	}
)

func init() {
	serveCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "/etc/config/deckbeam.yml", "config file (default is /etc/config/deckbeam.yml)")
}
