// File: cmd/ask.go
package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/luminark/rudder/api/schemas"
	"github.com/luminark/rudder/internal/observability"
	"github.com/luminark/rudder/internal/orchestrator"
)

// newAskCmd creates and configures the `ask` command.
func newAskCmd() *cobra.Command {
	var (
		conversationID string
		showRecord     bool
	)

	askCmd := &cobra.Command{
		Use:   "ask [query...]",
		Short: "Answers a single natural-language query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			engine, cleanup, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if conversationID == "" {
				conversationID = uuid.NewString()
			}
			query := schemas.Query{
				RawText:        strings.Join(args, " "),
				ConversationID: conversationID,
				TurnIndex:      0,
				Timestamp:      time.Now(),
			}

			decision, err := engine.Decide(ctx, query)
			if err != nil {
				var exhausted *orchestrator.AllPathsExhaustedError
				if errors.As(err, &exhausted) && exhausted.PartialOutput != "" {
					fmt.Fprintln(cmd.OutOrStdout(), "Partial result before failure:")
					fmt.Fprintln(cmd.OutOrStdout(), exhausted.PartialOutput)
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), decision.Response)
			if decision.Clarification != "" {
				fmt.Fprintln(cmd.OutOrStdout(), decision.Clarification)
			}
			if showRecord {
				record, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(decision.Record, "", "  ")
				if err != nil {
					return fmt.Errorf("rendering execution record: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(record))
			}
			return nil
		},
	}

	askCmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id to continue (default: a fresh one)")
	askCmd.Flags().BoolVar(&showRecord, "show-record", false, "print the winning attempt's execution record as JSON")
	return askCmd
}
