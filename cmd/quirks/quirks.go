// Package quirks provides the command that prints the stream open decision.
package quirks

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiostream/internal/conf"
	"github.com/tphakala/audiostream/internal/runner"
)

// Command creates the quirks command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quirks",
		Short: "Print how the configured stream request would be opened",
		Long:  "Apply the platform quirk rules to the configured stream request and print the adjusted request, the rules that fired and whether a conversion stage is needed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printDecision(cmd, settings)
		},
	}

	flags := cmd.Flags()
	flags.String("api", "", "Backend API: unspecified, low-latency or buffer-queue")
	flags.String("direction", "", "Stream direction: output or input")
	flags.String("format", "", "Sample format: unspecified, i16 or float")
	flags.Int("rate", 0, "Sample rate in Hz")
	flags.Int("channels", 0, "Channel count")

	return cmd
}

func printDecision(cmd *cobra.Command, settings *conf.Settings) error {
	backends := runner.NewBackends(settings)
	defer func() {
		_ = backends.Close()
	}()

	r, err := runner.New(settings, backends)
	if err != nil {
		return err
	}
	decision := r.Decide()

	rules := "none"
	if len(decision.FiredRules) > 0 {
		rules = strings.Join(decision.FiredRules, ", ")
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "platform:\tapi level %d, low latency %t\n", settings.Platform.APILevel, settings.Platform.LowLatency)
	fmt.Fprintf(w, "requested:\t%s\n", r.Request())
	fmt.Fprintf(w, "adjusted:\t%s\n", decision.Adjusted)
	fmt.Fprintf(w, "rules:\t%s\n", rules)
	fmt.Fprintf(w, "conversion:\t%t\n", decision.ConversionNeeded)
	return w.Flush()
}
