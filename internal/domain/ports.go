package domain

import "context"

// LineSource produces complete lines from a growing log file.
type LineSource interface {
	// Start follows the source until ctx is cancelled or a terminal error occurs.
	// Lines() is closed when Start returns.
	Start(ctx context.Context) error

	// Lines returns the channel on which lines are delivered in file order.
	Lines() <-chan Line
}

// MetricsSink accumulates the exporter's counters and gauges.
// Implementations must be safe for concurrent use.
type MetricsSink interface {
	// IncLogLine increments the line counter for the given level.
	IncLogLine(level string)

	// IncHarvesterEvents increments the recognized harvest event counter.
	IncHarvesterEvents()

	// AddPlotsEligible adds n to the cumulative eligible plot counter.
	AddPlotsEligible(n uint64)

	// AddPlotsProofs adds n to the cumulative proofs counter.
	AddPlotsProofs(n uint64)

	// SetPlotsTotal overwrites the total plots gauge.
	SetPlotsTotal(n int64)
}
