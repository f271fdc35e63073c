// Package devices provides the command that lists backend devices.
package devices

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/conf"
	"github.com/tphakala/audiostream/internal/runner"
)

// Command creates the devices command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices of every backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDevices(cmd, settings)
		},
	}
}

func listDevices(cmd *cobra.Command, settings *conf.Settings) error {
	backends := runner.NewBackends(settings)
	defer func() {
		_ = backends.Close()
	}()

	byAPI, err := backends.Devices()

	apis := make([]audiocore.API, 0, len(byAPI))
	for api := range byAPI {
		apis = append(apis, api)
	}
	slices.Sort(apis)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "API\tID\tNAME\tDIRECTION\tDEFAULT")
	for _, api := range apis {
		for _, d := range byAPI[api] {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%t\n", api, d.ID, d.Name, directions(d), d.IsDefault)
		}
	}
	if flushErr := w.Flush(); flushErr != nil {
		return flushErr
	}

	// Backends that failed to enumerate are reported after the ones that did.
	return err
}

func directions(d audiocore.DeviceInfo) string {
	switch {
	case d.Input && d.Output:
		return "duplex"
	case d.Input:
		return "input"
	case d.Output:
		return "output"
	default:
		return "-"
	}
}
