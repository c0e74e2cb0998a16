// File: cmd/chat.go
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
	"github.com/luminark/rudder/internal/classifier"
	"github.com/luminark/rudder/internal/observability"
	"github.com/luminark/rudder/internal/orchestrator"
)

// newChatCmd creates the interactive multi-turn `chat` command. Each line is
// one turn in a single conversation, so back-references ("delete it") resolve
// against earlier turns.
func newChatCmd() *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Starts an interactive conversation on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			engine, cleanup, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			conversationID := uuid.NewString()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "rudder chat - type a query, or \"exit\" to leave")

			scanner := bufio.NewScanner(cmd.InOrStdin())
			turn := 0
			for {
				if ctx.Err() != nil {
					return nil
				}
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}

				decision, err := engine.Decide(ctx, schemas.Query{
					RawText:        line,
					ConversationID: conversationID,
					TurnIndex:      turn,
					Timestamp:      time.Now(),
				})
				turn++
				if err != nil {
					var validation *classifier.ValidationError
					var exhausted *orchestrator.AllPathsExhaustedError
					switch {
					case errors.As(err, &validation):
						fmt.Fprintf(out, "(%v)\n", validation)
					case errors.As(err, &exhausted):
						fmt.Fprintf(out, "I could not complete that request (%d attempts failed).\n", len(exhausted.Attempts))
						if exhausted.PartialOutput != "" {
							fmt.Fprintf(out, "Partial result: %s\n", exhausted.PartialOutput)
						}
					default:
						logger.Error("Turn failed", zap.Error(err))
						fmt.Fprintf(out, "(error: %v)\n", err)
					}
					continue
				}

				fmt.Fprintln(out, decision.Response)
				if decision.Clarification != "" {
					fmt.Fprintln(out, decision.Clarification)
				}
			}
		},
	}
	return chatCmd
}
