package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/thruflo/voiceloops/internal/server"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle <loop>",
	Short: "Advance a loop OFF -> LISTEN -> TALK -> LISTEN",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoopCommand(server.ActionToggle),
}

var offCmd = &cobra.Command{
	Use:   "off <loop>",
	Short: "Turn a loop off and release its worker",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoopCommand(server.ActionOff),
}

var delayCmd = &cobra.Command{
	Use:       "delay on|off",
	Short:     "Switch delayed mute and leave on or off for every worker",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE:      runDelay,
}

var volumeCmd = &cobra.Command{
	Use:   "volume <loop> <0-2>",
	Short: "Set a loop's playback volume",
	Long: `Sets a loop's playback volume. Values are clamped to the range 0 to 2;
1 is unity gain. The volume is remembered for loops that are off.`,
	Args: cobra.ExactArgs(2),
	RunE: runVolume,
}

func init() {
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(offCmd)
	rootCmd.AddCommand(delayCmd)
	rootCmd.AddCommand(volumeCmd)
}

func runLoopCommand(action string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		loop := args[0]
		resp, err := client.Command(cmd.Context(), server.CommandRequest{Action: action, Loop: loop})
		if err != nil {
			return fmt.Errorf("failed to %s %s: %w", action, loop, err)
		}

		out := cmd.OutOrStdout()
		switch {
		case resp == nil:
			fmt.Fprintf(out, "%s: ignored (unknown loop or not listenable)\n", loop)
		case resp.Endpoint != nil:
			fmt.Fprintf(out, "%s: %s\n", loop, *resp.Endpoint)
		case action == server.ActionOff:
			fmt.Fprintf(out, "%s: off\n", loop)
		default:
			fmt.Fprintf(out, "%s: no idle worker\n", loop)
		}
		return nil
	}
}

func runDelay(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	enabled := args[0] == "on"
	if _, err := client.Command(cmd.Context(), server.CommandRequest{Action: server.ActionDelay, Enabled: enabled}); err != nil {
		return fmt.Errorf("failed to set delay: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "delay %s\n", args[0])
	return nil
}

func runVolume(cmd *cobra.Command, args []string) error {
	volume, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid volume %q: %w", args[1], err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.SetVolume(cmd.Context(), args[0], volume); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}
	return nil
}
