package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAgentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List configured agents, their canonical ids and the current selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd); err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tROLE")
			s := a.orch.Settings()
			for _, info := range a.agents.List() {
				var roles []string
				if info.ID == s.Primary {
					roles = append(roles, "primary")
				}
				if info.ID == s.Fallback {
					roles = append(roles, "fallback")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", info.ID, info.Name, strings.Join(roles, ","))
			}
			fmt.Fprintf(w, "\ndebug level: %s\n", s.Debug)
			if err := w.Flush(); err != nil {
				return err
			}

			if a.client == nil {
				return nil
			}
			remote, err := a.client.ListAgents(cmd.Context())
			if err != nil {
				opts.logger.Warn("ha_list_agents_failed", "error", err)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\nHome Assistant agents:")
			for _, ra := range remote {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", ra.ID, ra.Name)
			}
			return nil
		},
	}
}
