package sessions

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats per-session counters
type Stats struct {
	startTime        time.Time
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	transcriptions   atomic.Int64
	syntheses        atomic.Int64
	errors           atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

type StatsSnapshot struct {
	StartTime        time.Time     `json:"start_time"`
	Duration         time.Duration `json:"duration"`
	MessagesSent     int64         `json:"messages_sent"`
	MessagesReceived int64         `json:"messages_received"`
	Transcriptions   int64         `json:"transcriptions"`
	Syntheses        int64         `json:"syntheses"`
	Errors           int64         `json:"errors"`
	Turns            int           `json:"turns"`
	AvgLatency       time.Duration `json:"avg_latency"`
	MaxLatency       time.Duration `json:"max_latency"`
}

func NewStats(start time.Time) *Stats {
	return &Stats{startTime: start}
}

func (s *Stats) MessageSent() { s.messagesSent.Add(1) }
func (s *Stats) MessageReceived() { s.messagesReceived.Add(1) }
func (s *Stats) Transcribed() { s.transcriptions.Add(1) }
func (s *Stats) Synthesized() { s.syntheses.Add(1) }
func (s *Stats) ErrorOccurred() { s.errors.Add(1) }
func (s *Stats) StartTime() time.Time { return s.startTime }

// AddLatency records one end-to-end turn duration.
func (s *Stats) AddLatency(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func (s *Stats) Snapshot(now time.Time) StatsSnapshot {
	snap := StatsSnapshot{
		StartTime:        s.startTime,
		Duration:         now.Sub(s.startTime),
		MessagesSent:     s.messagesSent.Load(),
		MessagesReceived: s.messagesReceived.Load(),
		Transcriptions:   s.transcriptions.Load(),
		Syntheses:        s.syntheses.Load(),
		Errors:           s.errors.Load(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Turns = len(s.latencies)
	var total time.Duration
	for _, d := range s.latencies {
		total += d
		if d > snap.MaxLatency {
			snap.MaxLatency = d
		}
	}
	if snap.Turns > 0 {
		snap.AvgLatency = total / time.Duration(snap.Turns)
	}
	return snap
}
