package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-rental-payments/app/factory"
	"github.com/vibast-solutions/ms-go-rental-payments/config"
)

var (
	workerMode bool
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Run payment request related commands",
}

var requestsStaleCmd = &cobra.Command{
	Use:   "stale",
	Short: "Report payment requests still awaiting a provider callback",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"requests_stale",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.StaleScanInterval },
			func(app *application, ctx context.Context) error {
				_, err := app.paymentService.RunStaleSubmittedScan(ctx)
				return err
			},
		)
	},
}

var payoutsCmd = &cobra.Command{
	Use:   "payouts",
	Short: "Run owner payout related commands",
}

var payoutsDueCmd = &cobra.Command{
	Use:   "due",
	Short: "Publish payout-due events for owners whose payout day has arrived",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"payouts_due",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.PayoutScanInterval },
			func(app *application, ctx context.Context) error {
				return app.financeService.RunPayoutsDue(ctx, app.publisher, factory.NewModuleLogger("payouts-job"))
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(payoutsCmd)
	requestsCmd.AddCommand(requestsStaleCmd)
	payoutsCmd.AddCommand(payoutsDueCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(app *application, ctx context.Context) error,
) {
	app, cleanup := mustCreateApplication()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(app.cfg), app, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(app, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	app *application,
	fn func(app *application, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(app, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(app, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
