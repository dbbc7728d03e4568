package domain

import "time"

// Line is a single complete line read from the followed log file.
type Line struct {
	Text   string
	Offset int64 // byte offset of the line's first byte in the current file
}

// LogEntry is one parsed line of a chia debug.log.
type LogEntry struct {
	Timestamp time.Time
	App       string
	Module    string
	Level     string
	Text      string
}

// HarvestEvent is the result of one harvester "plots were eligible for farming" report.
type HarvestEvent struct {
	EligiblePlots uint64
	ProofsFound   uint64
	TotalPlots    int64 // absolute, not incremental
}
