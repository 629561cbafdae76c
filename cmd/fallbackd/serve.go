package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harunnryd/fallback/pkg/config"
	"github.com/harunnryd/fallback/pkg/runner"
)

const drainTimeout = 10 * time.Second

var errConnectionLost = errors.New("home assistant connection lost")

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noBanner bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer utterances read line by line from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			if _, err := config.Watch(opts.configPath, opts.logger, func(next config.Config) {
				s := a.orch.Apply(next.Selection())
				opts.logger.Info("fallback_settings_applied",
					"primary", string(s.Primary),
					"fallback", string(s.Fallback),
					"debug_level", s.Debug.String(),
				)
			}); err != nil {
				opts.logger.Warn("config_watch_failed", "error", err)
			}

			var lost <-chan struct{}
			if a.client != nil {
				lost = a.client.Done()
			}
			lr := runner.NewLifecycleRunner(runner.DrainFunc(func(context.Context) error { return a.close() }), runner.Hooks{
				OnStart: func(ctx context.Context) error {
					if a.catalog != nil {
						a.catalog.Get(ctx)
					}
					return nil
				},
				Serve: func(ctx context.Context) error {
					return serveLines(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), lost, func(ctx context.Context, text string) string {
						return a.process(ctx, text).Response.Speech
					})
				},
				OnStop: func() { opts.logger.Info("fallback_stopped") },
			}, drainTimeout).WithLogger(opts.logger)
			if !noBanner {
				lr.WithBanner(cmd.ErrOrStderr())
			}
			return lr.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "do not print the startup banner")
	return cmd
}

// serveLines answers each non-empty input line with one output line until
// input ends, ctx is cancelled or lost is closed.
func serveLines(ctx context.Context, in io.Reader, out io.Writer, lost <-chan struct{}, answer func(context.Context, string) string) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-lost:
			return errConnectionLost
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if _, err := fmt.Fprintln(out, answer(ctx, text)); err != nil {
				return err
			}
		}
	}
}
