package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/thruflo/voiceloops/internal/auth"
	"github.com/thruflo/voiceloops/internal/config"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or change the run configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetRoleCmd = &cobra.Command{
	Use:   "set-role <ROLE>",
	Short: "Change the console role and save the configuration",
	Long: `Changes the role and saves the configuration file. A running console
picks the change up on its next save_config or restart.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigSetRole,
}

var (
	setPasswordStdin bool
	setPasswordClear bool
)

var configSetPasswordCmd = &cobra.Command{
	Use:   "set-password",
	Short: "Protect the console with a password",
	Long: `Prompts for a password and stores its argon2id hash in the configuration.
A running console must be restarted to pick it up. Use --clear to remove
the password, or --stdin to read it from standard input.`,
	Args: cobra.NoArgs,
	RunE: runConfigSetPassword,
}

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List known console roles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, r := range config.Roles {
			fmt.Fprintln(cmd.OutOrStdout(), r)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetRoleCmd)
	configSetPasswordCmd.Flags().BoolVar(&setPasswordStdin, "stdin", false, "read the password from standard input")
	configSetPasswordCmd.Flags().BoolVar(&setPasswordClear, "clear", false, "remove password protection")
	configCmd.AddCommand(configSetPasswordCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(rolesCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !config.Exists(configPath) {
		fmt.Fprintf(out, "# %s not found; showing defaults\n", configPath)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func runConfigSetRole(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cfg.Role = strings.ToUpper(args[0])
	if err := config.SaveConfig(configPath, cfg); err != nil {
		if config.IsValidationError(err) {
			return fmt.Errorf("%w (known roles: %s)", err, strings.Join(config.Roles, ", "))
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Role set to %s in %s\n", cfg.Role, configPath)
	return nil
}

func runConfigSetPassword(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if setPasswordClear {
		cfg.PasswordHash = ""
		if err := config.SaveConfig(configPath, cfg); err != nil {
			return err
		}
		fmt.Fprintln(out, "Password protection removed")
		return nil
	}

	pw, err := readNewPassword(cmd)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(pw)
	if err != nil {
		return err
	}
	cfg.PasswordHash = hash
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Password saved to %s\n", configPath)
	return nil
}

func readNewPassword(cmd *cobra.Command) (string, error) {
	if !setPasswordStdin {
		if !auth.IsTerminal() {
			return "", errors.New("stdin is not a terminal; use --stdin")
		}
		return auth.PromptAndConfirmPassword(cmd.OutOrStdout())
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", auth.ErrEmptyPassword
	}
	return pw, nil
}
