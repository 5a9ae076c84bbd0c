// AngelaMos | 2026
// reporter.go

package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/gate"
	"github.com/carterperez-dev/gatepass/internal/metrics"
)

const runTimeout = 30 * time.Second

type TotalsSource interface {
	Totals(ctx context.Context) (*gate.Totals, error)
}

// Reporter refreshes the registration and redemption gauges on a cron
// schedule and logs a one-line summary each run.
type Reporter struct {
	cron     *cron.Cron
	source   TotalsSource
	metrics  *metrics.Metrics
	logger   *slog.Logger
	schedule string
}

func New(
	cfg config.ReportConfig,
	source TotalsSource,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Reporter {
	return &Reporter{
		cron:     cron.New(),
		source:   source,
		metrics:  m,
		logger:   logger,
		schedule: cfg.Schedule,
	}
}

// Start runs one report immediately, then schedules the rest.
func (r *Reporter) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.schedule, func() {
		//nolint:errcheck // logged inside Run
		_ = r.Run(context.Background())
	}); err != nil {
		return fmt.Errorf("report schedule %q: %w", r.schedule, err)
	}

	//nolint:errcheck // logged inside Run
	_ = r.Run(ctx)

	r.cron.Start()
	r.logger.Info("stats reporter started", "schedule", r.schedule)
	return nil
}

// Stop waits for a running report to finish or ctx to expire.
func (r *Reporter) Stop(ctx context.Context) {
	done := r.cron.Stop()

	select {
	case <-done.Done():
	case <-ctx.Done():
		r.logger.Warn("stats reporter stop timed out")
		return
	}
	r.logger.Info("stats reporter stopped")
}

func (r *Reporter) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	totals, err := r.source.Totals(ctx)
	if err != nil {
		r.logger.Warn("stats report failed", "error", err)
		return err
	}

	byClass := make(map[string]int, len(totals.ByClass))
	for class, n := range totals.ByClass {
		byClass[string(class)] = n
	}
	r.metrics.SetTotals(totals.Registrations, byClass)

	r.logger.Info("stats",
		"registrations", totals.Registrations,
		"redemptions", totals.Redemptions,
		"by_class", byClass,
	)
	return nil
}
