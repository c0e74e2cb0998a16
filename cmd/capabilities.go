// File: cmd/capabilities.go
package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/luminark/rudder/internal/observability"
)

// newCapabilitiesCmd creates the `capabilities` command, which prints the
// connector actions currently visible to the strategy selector.
func newCapabilitiesCmd() *cobra.Command {
	capsCmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Lists the capabilities available from the connector registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			engine, cleanup, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			caps := engine.Catalog().All()
			sort.Slice(caps, func(i, j int) bool {
				if caps[i].Category != caps[j].Category {
					return caps[i].Category < caps[j].Category
				}
				return caps[i].ID < caps[j].ID
			})

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCATEGORY\tRELIABILITY\tAVG LATENCY\tPARAMETERS")
			for _, c := range caps {
				params := make([]string, 0, len(c.Parameters))
				for name, spec := range c.Parameters {
					if spec.Required {
						params = append(params, name+"*")
					} else {
						params = append(params, name)
					}
				}
				sort.Strings(params)
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%dms\t%s\n",
					c.ID, c.Category, c.ReliabilityScore, c.AvgLatencyMS, strings.Join(params, ", "))
			}
			return w.Flush()
		},
	}
	return capsCmd
}
