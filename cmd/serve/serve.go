package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/racephotos/bibfinder/internal/api"
	"github.com/racephotos/bibfinder/internal/app"
	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/logger"
)

// Command creates the serve command: the HTTP API plus the photo workers.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the photo workers",
		Long: "Start the HTTP API and the job queue. Photos left pending or processing " +
			"by a previous run are queued again on startup.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), ctx)
		},
	}

	cmd.Flags().String("listen", viper.GetString("server.listen"), "Listen address of the HTTP API")
	cobra.CheckErr(viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen")))

	return cmd
}

// Run serves until SIGINT or SIGTERM, then drains the server and the queue.
func Run(parent context.Context, actx *app.Context) error {
	log := logger.Global().Module("serve")

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

	cfg := api.ConfigFromSettings(actx.Settings)
	server, err := api.New(cfg,
		api.WithPhotoStore(p.Store.Photos()),
		api.WithDetectionStore(p.Store.Detections()),
		api.WithStatusService(p.Processor),
		api.WithJobs(p.Dispatcher, p.Queue),
		api.WithDetector(p.Detector.Orchestrator, app.DetectionOptions(actx.Settings.Detection)),
		api.WithMetrics(p.Metrics),
	)
	if err != nil {
		return err
	}

	// Jobs are stopped explicitly during shutdown, not by the signal context.
	p.Queue.Start(context.WithoutCancel(ctx))
	if _, err := p.SubmitUnfinished(ctx, true); err != nil {
		log.Warn("could not resume unfinished photos", logger.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		serverErr := server.Shutdown()
		queueErr := p.Queue.Stop(cfg.ShutdownTimeout)
		return errors.Join(serverErr, queueErr)
	})

	return g.Wait()
}
