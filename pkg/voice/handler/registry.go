package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/code-100-precent/LingVoice/pkg/metrics"
	"github.com/code-100-precent/LingVoice/pkg/voice/constants"
	"github.com/code-100-precent/LingVoice/pkg/voice/protocol"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultReportSpec registry reporter schedule
const DefaultReportSpec = "@every 1m"

var ErrRegistryClosed = errors.New("session registry closed")

// Registry process-wide map of active voice sessions. The map only changes
// on create and remove.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*protocol.Session
	closed   bool

	metrics *metrics.Metrics
	logger  *zap.Logger
	cron    *cron.Cron
}

func NewRegistry(m *metrics.Metrics, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.L()
	}
	return &Registry{
		sessions: make(map[string]*protocol.Session),
		metrics:  m,
		logger:   logger,
	}
}

// Create builds a session and registers it. A taken id gets a numeric
// suffix, two connections of one user in the same second stay distinct.
func (r *Registry) Create(ctx context.Context, opt *protocol.SessionOption) (*protocol.Session, error) {
	if opt == nil || opt.UserID == "" {
		return nil, fmt.Errorf("create session: missing user id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	base := opt.ID
	for n := 2; ; n++ {
		if _, taken := r.sessions[opt.ID]; !taken {
			break
		}
		opt.ID = fmt.Sprintf("%s_%d", base, n)
	}
	s := protocol.NewSession(ctx, opt)
	r.sessions[s.ID()] = s
	if r.metrics != nil {
		r.metrics.SessionOpened()
	}
	r.logger.Info("[Registry] --- session created",
		zap.String("session_id", s.ID()), zap.Int("active", len(r.sessions)))
	return s, nil
}

// Remove drops the session, it does not close it.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	if r.metrics != nil {
		r.metrics.SessionClosed()
	}
	r.logger.Info("[Registry] --- session removed",
		zap.String("session_id", id), zap.Int("active", len(r.sessions)))
	return true
}

func (r *Registry) Get(id string) (*protocol.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs sorted session ids
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// CloseAll closes every session with 1001 and refuses new ones. Each
// session's read loop removes itself from the map.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	list := make([]*protocol.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range list {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.Close(constants.CloseGoingAway, "server shutting down")
			return nil
		})
	}
	err := g.Wait()
	r.logger.Info("[Registry] --- all sessions closed", zap.Int("count", len(list)), zap.Error(err))
	return err
}

// StartReporter schedules a job that logs the registry size and resyncs the
// active sessions gauge.
func (r *Registry) StartReporter(spec string) error {
	if spec == "" {
		spec = DefaultReportSpec
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, r.report); err != nil {
		return fmt.Errorf("schedule registry reporter %q: %w", spec, err)
	}
	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()
	c.Start()
	return nil
}

func (r *Registry) StopReporter() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (r *Registry) report() {
	n := r.Count()
	if r.metrics != nil {
		r.metrics.SetActiveSessions(n)
	}
	busy := 0
	r.mu.RLock()
	for _, s := range r.sessions {
		if s.Busy() {
			busy++
		}
	}
	r.mu.RUnlock()
	r.logger.Info("[Registry] --- active voice sessions", zap.Int("active", n), zap.Int("busy", busy))
}
