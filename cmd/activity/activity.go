// Package activity provides the commands that run one engine activity.
package activity

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiostream/internal/conf"
	"github.com/tphakala/audiostream/internal/engine"
	"github.com/tphakala/audiostream/internal/runner"
)

// Annotation is the command annotation holding the activity name.
const Annotation = "activity"

// Command creates the command use that runs activity a.
func Command(settings *conf.Settings, a engine.Activity, use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:         use,
		Short:       short,
		Long:        short + ". The run ends after --duration, or on SIGINT or SIGTERM. The final engine status is printed as JSON.",
		Annotations: map[string]string{Annotation: a.String()},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, settings)
		},
	}

	setupFlags(cmd, a)
	return cmd
}

// setupFlags defines the flags of an activity command. Output flags are
// only defined for activities that play something.
func setupFlags(cmd *cobra.Command, a engine.Activity) {
	flags := cmd.Flags()
	flags.Duration("duration", 0, "Stop after this long, 0 runs until interrupted")
	flags.Bool("blocking", false, "Use blocking reads and writes instead of callbacks")
	flags.Int("callback-size", 0, "Frames per callback or blocking transfer, 0 uses the burst")
	flags.String("api", "", "Backend API: unspecified, low-latency or buffer-queue")
	flags.String("format", "", "Sample format: unspecified, i16 or float")
	flags.Int("rate", 0, "Sample rate in Hz, 0 lets the backend choose")
	flags.Int("channels", 0, "Channel count, 0 lets the backend choose")
	flags.Int("device", 0, "Device ID, 0 uses the default device")

	switch a {
	case engine.ActivityTestOutput:
		flags.String("tone", "", "Tone type: sine, sawtooth, saw-ping or impulse")
		flags.Float64("amplitude", 0, "Tone amplitude between 0 and 1")
		flags.Float64("frequency", 0, "Base tone frequency in Hz")
	case engine.ActivityTapToTone:
		flags.Float64("amplitude", 0, "Ping amplitude between 0 and 1")
	case engine.ActivityEcho:
		flags.Duration("echo-delay", 0, "Echo delay, at most 2s")
	}
}

func run(ctx context.Context, cmd *cobra.Command, settings *conf.Settings) error {
	backends := runner.NewBackends(settings)
	defer func() {
		_ = backends.Close()
	}()

	r, err := runner.New(settings, backends)
	if err != nil {
		return err
	}

	status, err := r.Run(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}
