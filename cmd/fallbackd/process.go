package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harunnryd/fallback/pkg/agent"
	"github.com/harunnryd/fallback/pkg/translator"
)

func newProcessCmd(opts *rootOptions) *cobra.Command {
	var (
		conversationID string
		area           string
		asJSON         bool
	)
	cmd := &cobra.Command{
		Use:   "process <text>",
		Short: "Process one utterance and print the spoken answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd); err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			res := a.orch.Process(cmd.Context(), agent.Request{
				Text:           strings.Join(args, " "),
				ConversationID: conversationID,
				AreaHint:       area,
			})
			if !asJSON {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), res.Response.Speech)
				return err
			}
			attempts := make([]attemptView, 0, len(res.Attempts))
			for _, at := range res.Attempts {
				attempts = append(attempts, attemptView{
					AgentID:   string(at.AgentID),
					AgentName: at.AgentName,
					Speech:    at.OriginalSpeech,
					Succeeded: at.Succeeded,
				})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(processView{
				Outcome:        string(res.Outcome),
				Speech:         res.Response.Speech,
				Classification: string(res.Response.Classification),
				ConversationID: res.Response.ConversationID,
				Plan:           res.Plan,
				Reason:         string(res.Translation.Reason),
				Attempts:       attempts,
			})
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation-id", "", "continue an existing conversation")
	cmd.Flags().StringVar(&area, "area", "", "area the request comes from")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

type attemptView struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Speech    string `json:"speech"`
	Succeeded bool   `json:"succeeded"`
}

type processView struct {
	Outcome        string                 `json:"outcome"`
	Speech         string                 `json:"speech"`
	Classification string                 `json:"classification"`
	ConversationID string                 `json:"conversation_id"`
	Plan           *translator.ActionPlan `json:"plan,omitempty"`
	Reason         string                 `json:"translate_reason,omitempty"`
	Attempts       []attemptView          `json:"attempts,omitempty"`
}
