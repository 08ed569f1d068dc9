package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/netmerge/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sessionOpts, err := sessionOptions(cfg)
		if err != nil {
			return err
		}
		opts := []server.Option{
			server.WithSessionOptions(sessionOpts...),
			server.WithSettings(runSettings(cfg.Consolidation)),
			server.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
			server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
			opts = append(opts, server.WithStore(st))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return server.New(opts...).ListenAndServe(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
