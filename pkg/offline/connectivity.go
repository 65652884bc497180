package offline

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Signal reports connectivity and notifies subscribers on every change.
// Subscribers are called synchronously from the goroutine that observed the
// change and must not block.
type Signal interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Switch is a Signal driven by explicit Set calls.
type Switch struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

func NewSwitch(online bool) *Switch {
	return &Switch{online: online, subs: make(map[int]func(bool))}
}

func (s *Switch) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set records the new state and notifies subscribers if it changed.
func (s *Switch) Set(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	subs := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}

func (s *Switch) Subscribe(fn func(online bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// HealthMonitor is a Signal fed by periodic requests to the server's health
// endpoint. It starts offline, so the first successful check counts as a
// restore.
type HealthMonitor struct {
	*Switch
	url      string
	interval time.Duration
	client   *http.Client
	logger   zerolog.Logger
}

func NewHealthMonitor(healthURL string, interval time.Duration, logger zerolog.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HealthMonitor{
		Switch:   NewSwitch(false),
		url:      healthURL,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

// Check performs a single health request and updates the signal.
func (m *HealthMonitor) Check(ctx context.Context) bool {
	online := m.ping(ctx)
	if online != m.Online() {
		m.logger.Info().Bool("online", online).Str("url", m.url).Msg("connectivity changed")
	}
	m.Set(online)
	return online
}

func (m *HealthMonitor) ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// Run checks immediately and then on every interval until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context) error {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
