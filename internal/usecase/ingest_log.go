package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/chia-harvester-metrics/internal/adapter/chialog"
	"github.com/V4T54L/chia-harvester-metrics/internal/domain"
)

const skipLogInterval = time.Minute

// IngestLogUseCase turns followed log lines into metric updates.
type IngestLogUseCase struct {
	sink    domain.MetricsSink
	logger  *slog.Logger
	cutoff  time.Time
	skipLog rate.Sometimes
}

// NewIngestLogUseCase creates a new IngestLogUseCase. Harvest events dated
// before cutoff are not counted; pass the process start time.
func NewIngestLogUseCase(sink domain.MetricsSink, logger *slog.Logger, cutoff time.Time) *IngestLogUseCase {
	return &IngestLogUseCase{
		sink:    sink,
		logger:  logger.With("component", "ingest_usecase"),
		cutoff:  cutoff,
		skipLog: rate.Sometimes{First: 1, Interval: skipLogInterval},
	}
}

// Cutoff returns the time before which harvest events are ignored.
func (uc *IngestLogUseCase) Cutoff() time.Time {
	return uc.cutoff
}

// Run consumes src until it ends. It returns the source's terminal error,
// or nil when ctx is cancelled.
func (uc *IngestLogUseCase) Run(ctx context.Context, src domain.LineSource) error {
	errc := make(chan error, 1)
	go func() {
		errc <- src.Start(ctx)
	}()

	uc.logger.Info("ingestion started", "cutoff", uc.cutoff)

	var processed uint64
	for line := range src.Lines() {
		uc.Handle(line)
		processed++
	}

	err := <-errc
	uc.logger.Info("ingestion stopped", "lines", processed, "error", err)
	return err
}

// Handle applies a single line to the sink. Lines that do not parse are
// dropped without touching any metric.
func (uc *IngestLogUseCase) Handle(line domain.Line) {
	entry, ok := chialog.ParseLine(line.Text)
	if !ok {
		uc.skipLog.Do(func() {
			uc.logger.Debug("skipping unrecognized log line", "offset", line.Offset, "line", line.Text)
		})
		return
	}

	// Line volume counts regardless of age; only harvest activity is gated.
	uc.sink.IncLogLine(entry.Level)

	if entry.Timestamp.Before(uc.cutoff) {
		return
	}

	event, ok := chialog.ExtractHarvest(entry)
	if !ok {
		return
	}

	uc.sink.IncHarvesterEvents()
	uc.sink.AddPlotsEligible(event.EligiblePlots)
	uc.sink.AddPlotsProofs(event.ProofsFound)
	uc.sink.SetPlotsTotal(event.TotalPlots)
}
