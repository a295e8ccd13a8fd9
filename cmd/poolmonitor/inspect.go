package main

import (
	"github.com/spf13/cobra"

	"poolmonitor/internal/model"
)

func runWeights(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	weights, err := a.coordinator.PoolWeights(ctx)
	if err != nil {
		return err
	}
	return printJSON(model.Numbers(weights))
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	cursor, err := a.coordinator.Cursor(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"author":      a.cfg.Author,
		"ledger":      a.cfg.Ledger,
		"next_height": cursor,
	})
}
