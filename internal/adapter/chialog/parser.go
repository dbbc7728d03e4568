// Package chialog turns chia-blockchain debug.log lines into structured
// entries and recognizes the harvester events the exporter counts.
//
// A chia log line looks like:
//
//	2021-05-01T10:00:00.123 harvester chia.harvester.harvester : INFO     512 plots were eligible ...
//
// Both ParseLine and ExtractHarvest are pure and safe for concurrent use.
// Lines that do not match are reported with a false result, never an error.
package chialog

import (
	"regexp"
	"strings"
	"time"

	"github.com/V4T54L/chia-harvester-metrics/internal/domain"
)

// TimestampLayout is the layout of the leading timestamp. It carries no zone
// and is interpreted as UTC.
const TimestampLayout = "2006-01-02T15:04:05.000"

var lineRe = regexp.MustCompile(`^([0-9T\-:.]+)\s+([A-Za-z_.]+)\s+([A-Za-z_.]+)\s*:\s*([A-Z]+)\s+(.*)$`)

// ParseLine parses one raw log line. The second result is false when the
// line does not have the timestamp/app/module/level/text shape or the
// timestamp cannot be parsed.
func ParseLine(raw string) (domain.LogEntry, bool) {
	raw = strings.TrimSuffix(raw, "\r")

	m := lineRe.FindStringSubmatch(raw)
	if m == nil {
		return domain.LogEntry{}, false
	}

	ts, err := time.ParseInLocation(TimestampLayout, m[1], time.UTC)
	if err != nil {
		return domain.LogEntry{}, false
	}

	return domain.LogEntry{
		Timestamp: ts,
		App:       m[2],
		Module:    m[3],
		Level:     m[4],
		Text:      m[5],
	}, true
}
