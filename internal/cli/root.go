package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thruflo/voiceloops/internal/config"
	"github.com/thruflo/voiceloops/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	configPath string
	logLevel   string
	serverURL  string
	password   string
)

// PasswordEnv supplies the console password to client commands when
// --password is not given.
const PasswordEnv = "VOICELOOPS_PASSWORD"

var rootCmd = &cobra.Command{
	Use:   "voiceloops",
	Short: "Voice loop console for a pool of audio-relay workers",
	Long: `voiceloops runs the control console for a mission-control style voice
system. Each loop is a named audio channel; a small pool of relay workers
joins loops on demand to listen or talk. The console decides which worker
serves which loop and tells the workers what to do.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logging.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("voiceloops version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "path to the run configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "console URL for client commands (default: from config listen_port)")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "console password for client commands (default: $"+PasswordEnv+")")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
