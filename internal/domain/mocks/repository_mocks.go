package mocks

import (
	"context"
	"sync"

	"github.com/V4T54L/chia-harvester-metrics/internal/domain"
)

// MockMetricsSink is an in-memory implementation of domain.MetricsSink for testing.
// It records every SetPlotsTotal value so tests can assert write order.
type MockMetricsSink struct {
	mu              sync.Mutex
	LogLines        map[string]uint64
	HarvesterEvents uint64
	PlotsEligible   uint64
	PlotsProofs     uint64
	PlotsTotal      int64
	TotalHistory    []int64
	EligibleHistory []uint64
	ProofsHistory   []uint64
}

func (m *MockMetricsSink) IncLogLine(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LogLines == nil {
		m.LogLines = make(map[string]uint64)
	}
	m.LogLines[level]++
}

func (m *MockMetricsSink) IncHarvesterEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HarvesterEvents++
}

func (m *MockMetricsSink) AddPlotsEligible(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlotsEligible += n
	m.EligibleHistory = append(m.EligibleHistory, m.PlotsEligible)
}

func (m *MockMetricsSink) AddPlotsProofs(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlotsProofs += n
	m.ProofsHistory = append(m.ProofsHistory, m.PlotsProofs)
}

func (m *MockMetricsSink) SetPlotsTotal(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlotsTotal = n
	m.TotalHistory = append(m.TotalHistory, n)
}

// LineCount returns the recorded count for level.
func (m *MockMetricsSink) LineCount(level string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LogLines[level]
}

// MockLineSource replays a fixed slice of lines and then returns StartErr.
type MockLineSource struct {
	Feed     []domain.Line
	StartErr error

	once sync.Once
	ch   chan domain.Line
}

func (m *MockLineSource) init() {
	m.once.Do(func() { m.ch = make(chan domain.Line) })
}

func (m *MockLineSource) Start(ctx context.Context) error {
	m.init()
	defer close(m.ch)
	for _, l := range m.Feed {
		select {
		case m.ch <- l:
		case <-ctx.Done():
			return nil
		}
	}
	return m.StartErr
}

func (m *MockLineSource) Lines() <-chan domain.Line {
	m.init()
	return m.ch
}
