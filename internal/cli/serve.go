package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thruflo/voiceloops/internal/logging"
	"github.com/thruflo/voiceloops/internal/server"
	"github.com/thruflo/voiceloops/web"
)

var (
	servePort       int
	serveConfigOnly bool
	serveWebDir     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console server",
	Long: `Runs the console HTTP server: the browser UI, the JSON API and /metrics.

With --config-only the server serves just the setup page until a
configuration is saved, then starts the engine.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default: config listen_port)")
	serveCmd.Flags().BoolVar(&serveConfigOnly, "config-only", false, "serve only the setup page until a config is saved")
	serveCmd.Flags().StringVar(&serveWebDir, "web-dir", "", "serve pages from this directory instead of the embedded copy")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.ListenPort = servePort
	}

	opts := server.Options{
		ConfigPath: configPath,
		Config:     cfg,
		ConfigOnly: serveConfigOnly,
		Logger:     logging.Default(),
	}
	if serveWebDir != "" {
		opts.Assets = web.GetAssets(serveWebDir)
	}

	srv, err := server.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveConfigOnly {
		fmt.Fprintf(cmd.OutOrStdout(), "Config-only mode: open %s/config to set up.\n", cfg.BaseURL())
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Console for %s at %s\n", cfg.Role, cfg.BaseURL())
	}
	return srv.Start(ctx)
}
