package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/thruflo/voiceloops/internal/engine"
	"github.com/thruflo/voiceloops/internal/status"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show loop status from a running console",
	Long: `Queries the console's /api/status and prints one row per loop with its
mode, assigned worker port, user count, volume and current talkers.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	st, err := client.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(out, st)
	return nil
}

func printStatus(out io.Writer, st *status.Status) {
	names := make([]string, 0, len(st.States))
	for name := range st.States {
		names = append(names, name)
	}
	sort.Strings(names)

	delay := "off"
	if st.Delay {
		delay = "on"
	}
	fmt.Fprintf(out, "Role: %s  Delay: %s\n\n", st.Role, delay)

	if len(names) == 0 {
		fmt.Fprintln(out, "No loops configured.")
		return
	}

	// Calculate column widths
	loopWidth := len("LOOP")
	for _, name := range names {
		if len(name) > loopWidth {
			loopWidth = len(name)
		}
	}

	fmt.Fprintf(out, "%-*s  %-6s  %-5s  %5s  %6s  %s\n", loopWidth, "LOOP", "MODE", "PORT", "USERS", "VOLUME", "TALKERS")
	fmt.Fprintf(out, "%s  %s  %s  %s  %s  %s\n",
		strings.Repeat("-", loopWidth), strings.Repeat("-", 6), strings.Repeat("-", 5),
		strings.Repeat("-", 5), strings.Repeat("-", 6), strings.Repeat("-", 7))

	for _, name := range names {
		port := "-"
		if p := st.Assignments[name]; p != nil {
			port = strconv.Itoa(*p)
		}
		fmt.Fprintf(out, "%-*s  %-6s  %-5s  %5d  %6.2f  %s\n",
			loopWidth, name,
			engine.Mode(st.States[name]).String(),
			port,
			st.UserCounts[name],
			st.Volumes[name],
			strings.Join(st.Talkers[name], ", "),
		)
	}

	if len(st.Unreachable) > 0 {
		fmt.Fprintf(out, "\nUnreachable workers: %s\n", strings.Join(st.Unreachable, ", "))
	}
}
