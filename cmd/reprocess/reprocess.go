package reprocess

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/racephotos/bibfinder/internal/app"
	"github.com/racephotos/bibfinder/internal/logger"
)

const stopTimeout = 30 * time.Second

// Command creates the reprocess command: queue unfinished photos and run
// the workers until the queue drains.
func Command(ctx *app.Context) *cobra.Command {
	var includeProcessing bool
	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Process every photo still pending",
		Long: "Queue every pending photo, and every completed photo whose detections were not saved, " +
			"and run the workers until the queue is empty. " +
			"With --include-processing, photos left processing by a crashed server are queued too; " +
			"do not use it while a server is running.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), ctx, includeProcessing, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&includeProcessing, "include-processing", false, "Also queue photos stuck in processing")
	return cmd
}

// Run submits the photos, waits for the queue to drain and prints the
// queue statistics as JSON.
func Run(parent context.Context, actx *app.Context, includeProcessing bool, out io.Writer) error {
	log := logger.Global().Module("reprocess")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := app.NewPipeline(actx.Settings, actx.Build)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Error("error closing pipeline", logger.Error(err))
		}
	}()

	p.Queue.Start(context.WithoutCancel(ctx))
	n, submitErr := p.SubmitUnfinished(ctx, includeProcessing)
	if n > 0 {
		log.Info("waiting for queue to drain", logger.Int("jobs", n))
		if err := p.Queue.WaitIdle(ctx); err != nil {
			log.Warn("interrupted before the queue drained", logger.Error(err))
		}
	}
	if err := p.Queue.Stop(stopTimeout); err != nil {
		log.Warn("queue stop", logger.Error(err))
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p.Queue.Stats()); err != nil {
		return err
	}
	return submitErr
}
