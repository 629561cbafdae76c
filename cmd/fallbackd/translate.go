package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harunnryd/fallback/pkg/catalog"
	"github.com/harunnryd/fallback/pkg/registry/memory"
	"github.com/harunnryd/fallback/pkg/translator"
)

func newTranslateCmd(opts *rootOptions) *cobra.Command {
	var (
		fixture string
		area    string
	)
	cmd := &cobra.Command{
		Use:   "translate <text>",
		Short: "Dry-run the deterministic translator against a YAML home fixture",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := opts.loadOptional(cmd)
			if err != nil {
				return err
			}
			tcfg := translator.Config{}
			copts := catalog.Options{Logger: opts.logger}
			if loaded {
				tcfg = opts.cfg.TranslatorConfig()
				copts.Domains = opts.cfg.Catalog.Domains
			}
			return runTranslate(cmd, fixture, strings.Join(args, " "), area, tcfg, copts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&fixture, "fixture", "", "YAML file describing areas, entities and exposure")
	cmd.Flags().StringVar(&area, "area", "", "area the request comes from")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}

type translateView struct {
	Handled    bool                   `json:"handled"`
	Reason     string                 `json:"reason,omitempty"`
	Normalized string                 `json:"normalized_text"`
	Plan       *translator.ActionPlan `json:"plan,omitempty"`
	Match      *matchView             `json:"match,omitempty"`
}

type matchView struct {
	EntityID string  `json:"entity_id"`
	Score    float64 `json:"score"`
	RunnerUp float64 `json:"runner_up"`
	Area     string  `json:"area,omitempty"`
}

// runTranslate builds a catalog from the fixture and prints the translation
// without executing anything.
func runTranslate(cmd *cobra.Command, fixture, text, area string, tcfg translator.Config, copts catalog.Options, out io.Writer) error {
	store, err := memory.LoadFixture(fixture)
	if err != nil {
		return err
	}
	tr, err := translator.New(tcfg)
	if err != nil {
		return err
	}
	copts.Registry, copts.Exposure, copts.States = store, store, store
	cat := catalog.New(copts)
	if err := cat.Rebuild(cmd.Context(), true); err != nil {
		return err
	}

	res := tr.Translate(text, cat.Items(cmd.Context()), area)
	view := translateView{
		Handled:    res.Handled,
		Reason:     string(res.Reason),
		Normalized: res.NormalizedText,
		Plan:       res.Plan,
	}
	if res.Match.EntityID != "" || res.Match.Score > 0 {
		view.Match = &matchView{
			EntityID: res.Match.EntityID,
			Score:    res.Match.Score,
			RunnerUp: res.Match.RunnerUp,
			Area:     res.Match.Area,
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
