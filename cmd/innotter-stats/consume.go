package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Project page, post and user events into the statistics store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		g, gctx := errgroup.WithContext(ctx)

		p, err := newProjector(gctx, a)
		if err != nil {
			return err
		}

		g.Go(func() error {
			return a.monitoring.Serve(gctx, a.tracer)
		})

		g.Go(func() error {
			return runProjector(gctx, p)
		})

		return g.Wait()
	},
}
