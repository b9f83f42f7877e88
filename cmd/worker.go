package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/worker"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long: `Start the background worker that marks silent devices offline and
reports update jobs that stopped progressing.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := buildComponents(cfg)
	defer c.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.New(c.svc, cfg.Worker, log).Run(ctx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Worker error")
		return err
	}

	log.Info("Worker shutting down gracefully")
	return nil
}
