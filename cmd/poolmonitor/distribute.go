package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolmonitor/internal/distribution"
)

func runDistribute(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	act, err := cmd.Flags().GetBool("act")
	if err != nil {
		return err
	}

	opts := distribution.RunOptions{Act: act}
	if cmd.Flags().Changed("start-height") {
		v, err := cmd.Flags().GetUint64("start-height")
		if err != nil {
			return err
		}
		opts.StartHeight = &v
	}
	if cmd.Flags().Changed("end-height") {
		v, err := cmd.Flags().GetUint64("end-height")
		if err != nil {
			return err
		}
		opts.EndHeight = &v
	}

	a, err := newApp(ctx, cmd, act)
	if err != nil {
		return err
	}
	defer a.Close()

	dist, err := a.coordinator.Run(ctx, opts)
	if errors.Is(err, distribution.ErrNothingToDistribute) {
		a.logger.Info("no new blocks since last distribution")
		return nil
	}
	if dist != nil {
		if printErr := printJSON(dist); printErr != nil {
			a.logger.Warn("print distribution", zap.Error(printErr))
		}
	}
	if err != nil {
		return fmt.Errorf("distribute: %w", err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
