// Package cmd assembles the audiostream command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/audiostream/cmd/activity"
	"github.com/tphakala/audiostream/cmd/config"
	"github.com/tphakala/audiostream/cmd/devices"
	"github.com/tphakala/audiostream/cmd/quirks"
	"github.com/tphakala/audiostream/internal/conf"
	"github.com/tphakala/audiostream/internal/engine"
	"github.com/tphakala/audiostream/internal/logger"
)

// flagKeys maps command line flags to the settings keys they override.
// Subcommands only define the flags that apply to them.
var flagKeys = map[string]string{
	"debug":         "debug",
	"simulated":     "platform.simulated",
	"metrics":       "metrics.listen",
	"duration":      "engine.duration",
	"tone":          "engine.tonetype",
	"amplitude":     "engine.amplitude",
	"frequency":     "engine.frequency",
	"callback-size": "engine.callbacksize",
	"echo-delay":    "engine.echodelay",
	"api":           "stream.api",
	"direction":     "stream.direction",
	"format":        "stream.format",
	"rate":          "stream.samplerate",
	"channels":      "stream.channelcount",
	"device":        "stream.deviceid",
}

// Execute runs the root command with the process arguments.
func Execute() error {
	settings := &conf.Settings{}
	return RootCommand(settings).Execute()
}

// RootCommand creates the root command. settings is filled in before any
// subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configPath string
	var central *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:          "audiostream",
		Short:        "Low-latency audio stream test tool",
		SilenceUsage: true,
	}

	setupFlags(rootCmd, &configPath)

	rootCmd.AddCommand(
		activity.Command(settings, engine.ActivityTestOutput, "tone", "Play a test tone"),
		activity.Command(settings, engine.ActivityTestInput, "input", "Capture input and report peak levels"),
		activity.Command(settings, engine.ActivityTapToTone, "tap", "Fire a saw ping on every input tap"),
		activity.Command(settings, engine.ActivityEcho, "echo", "Play input back after a delay"),
		activity.Command(settings, engine.ActivityRecordPlay, "record", "Record input, then play it back"),
		quirks.Command(settings),
		devices.Command(settings),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configPath, loadOptions(cmd)...)
		if err != nil {
			return err
		}
		*settings = *loaded

		central, err = initLogging(settings)
		return err
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return central.Close()
	}

	return rootCmd
}

// setupFlags defines the flags shared by every subcommand.
func setupFlags(rootCmd *cobra.Command, configPath *string) {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configPath, "config", "c", "", "Path to the configuration file")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("metrics", "", "Serve Prometheus metrics on this address")
	flags.Bool("simulated", false, "Use the in-memory backends instead of audio devices")
}

// loadOptions binds the flags cmd defines to their settings keys.
func loadOptions(cmd *cobra.Command) []conf.Option {
	flags := cmd.Flags()

	var opts []conf.Option
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			opts = append(opts, conf.WithFlag(key, f))
		}
	}

	if flags.Changed("metrics") {
		opts = append(opts, conf.WithOverride("metrics.enabled", true))
	}
	if blocking, err := flags.GetBool("blocking"); err == nil && blocking {
		opts = append(opts, conf.WithOverride("engine.usecallback", false))
	}
	if name, ok := cmd.Annotations[activity.Annotation]; ok {
		opts = append(opts, conf.WithOverride("engine.activity", name))
	}
	return opts
}

// initLogging installs the central logger described by settings.
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, err
	}
	logger.SetGlobal(central)
	return central, nil
}
