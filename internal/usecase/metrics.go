package usecase

import (
	"sort"
	"sync"
	"time"
)

// HandlerCount is one row of the handler distribution.
type HandlerCount struct {
	Handler string `json:"handler"`
	Count   int    `json:"count"`
}

// MetricsSnapshot is a point-in-time view of desk activity.
type MetricsSnapshot struct {
	TotalRequests   int            `json:"total_requests"`
	Automated       int            `json:"automated"`
	Escalated       int            `json:"escalated"`
	AutomationRate  float64        `json:"automation_rate"`
	AvgResponseTime time.Duration  `json:"avg_response_time"`
	Handlers        []HandlerCount `json:"handlers"`
	PositiveRatings int            `json:"positive_ratings"`
	NegativeRatings int            `json:"negative_ratings"`
	// Satisfaction is the share of positive ratings, or -1 with none.
	Satisfaction float64 `json:"satisfaction"`
}

// Metrics accumulates desk counters. Safe for concurrent use.
type Metrics struct {
	mu        sync.Mutex
	total     int
	escalated int
	elapsed   time.Duration
	handlers  map[string]int
	positive  int
	negative  int
}

// NewMetrics returns empty counters.
func NewMetrics() *Metrics {
	return &Metrics{handlers: make(map[string]int)}
}

// RecordTurn counts one completed turn.
func (m *Metrics) RecordTurn(handler string, escalated bool, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	if escalated {
		m.escalated++
	}
	m.elapsed += d
	m.handlers[handler]++
}

// RecordFeedback counts one rating.
func (m *Metrics) RecordFeedback(positive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if positive {
		m.positive++
	} else {
		m.negative++
	}
}

// Snapshot returns the current totals. Handlers are sorted by count,
// most used first.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MetricsSnapshot{
		TotalRequests:   m.total,
		Escalated:       m.escalated,
		Automated:       m.total - m.escalated,
		PositiveRatings: m.positive,
		NegativeRatings: m.negative,
		Satisfaction:    -1,
	}
	if m.total > 0 {
		s.AutomationRate = float64(s.Automated) / float64(m.total)
		s.AvgResponseTime = m.elapsed / time.Duration(m.total)
	}
	if rated := m.positive + m.negative; rated > 0 {
		s.Satisfaction = float64(m.positive) / float64(rated)
	}
	s.Handlers = make([]HandlerCount, 0, len(m.handlers))
	for h, n := range m.handlers {
		s.Handlers = append(s.Handlers, HandlerCount{Handler: h, Count: n})
	}
	sort.Slice(s.Handlers, func(i, j int) bool {
		if s.Handlers[i].Count != s.Handlers[j].Count {
			return s.Handlers[i].Count > s.Handlers[j].Count
		}
		return s.Handlers[i].Handler < s.Handlers[j].Handler
	})
	return s
}
