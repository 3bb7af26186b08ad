package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/huiputin/routemap/internal/board"
	"github.com/huiputin/routemap/internal/cluster"
	"github.com/huiputin/routemap/internal/feed"
	"github.com/huiputin/routemap/internal/influx"
	"github.com/huiputin/routemap/internal/lifecycle"
	"github.com/huiputin/routemap/internal/logging"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Feed       *feed.Feed
	Board      *board.Board
	Visits     *lifecycle.Registry
	Influx     *influx.Manager // optional
	LogManager *logging.SlogManager
	Interval   time.Duration
	StatusPath string // optional JSON status file
	// VisitTTL closes visits idle for longer than this on every tick. Zero keeps them.
	VisitTTL time.Duration
}

// SectorStatus is the per-sector part of Status.
type SectorStatus struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Status is one snapshot of the service health.
type Status struct {
	Time       time.Time      `json:"time"`
	Markers    int            `json:"markers"`
	Visible    int            `json:"visible"`
	Clustered  int            `json:"clustered"`
	NewRoutes  int            `json:"newRoutes"`
	OpenVisits int            `json:"openVisits"`
	Expired    int            `json:"expiredVisits"`
	FeedError  string         `json:"feedError,omitempty"`
	Sectors    []SectorStatus `json:"sectors"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	doneChan  chan struct{}
	now       func() time.Time
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Minute
	}
	return &Service{
		deps: deps,
		now:  time.Now,
	}
}

func (s *Service) logger() *slog.Logger {
	if s.deps.LogManager != nil {
		return s.deps.LogManager.Logger()
	}
	return slog.Default()
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus collects the current status. Idle visits are expired and closed ones
// pruned first.
func (s *Service) GetStatus() Status {
	st := Status{Time: s.now(), Sectors: []SectorStatus{}}

	if s.deps.Feed != nil {
		st.Markers = s.deps.Feed.Len()
		for _, m := range s.deps.Feed.Snapshot() {
			if m.Visible {
				st.Visible++
			}
		}
		if err := s.deps.Feed.Err(); err != nil {
			st.FeedError = err.Error()
		}
	}
	if s.deps.Board != nil {
		clusters := s.deps.Board.Clusters()
		st.Clustered = cluster.Total(clusters)
		st.NewRoutes = len(s.deps.Board.NewRouteIDs())
		for _, c := range clusters {
			st.Sectors = append(st.Sectors, SectorStatus{Name: c.Name, Count: c.Count})
		}
	}
	if s.deps.Visits != nil {
		st.Expired = s.deps.Visits.Expire(s.deps.VisitTTL)
		s.deps.Visits.Prune()
		st.OpenVisits = s.deps.Visits.Len()
	}
	return st
}

// Tick collects the status, logs it and writes it to the status file and InfluxDB.
func (s *Service) Tick(ctx context.Context) Status {
	logger := s.logger()
	st := s.GetStatus()

	logger.Info("Status",
		"markers", st.Markers,
		"visible", st.Visible,
		"newRoutes", st.NewRoutes,
		"openVisits", st.OpenVisits,
		"expiredVisits", st.Expired,
		"feedError", st.FeedError,
	)
	if s.deps.Board != nil && st.Clustered != st.Visible {
		// visible markers outside every sector are never clustered
		logger.Warn("Visible markers not covered by sectors", "visible", st.Visible, "clustered", st.Clustered)
	}

	if s.deps.StatusPath != "" {
		data, err := json.MarshalIndent(st, "", "  ")
		if err == nil {
			err = os.WriteFile(s.deps.StatusPath, data, 0o644)
		}
		if err != nil {
			logger.Error("Error writing status file", "error", err)
		}
	}

	if s.deps.Influx != nil {
		s.writeMetrics(ctx, st)
	}
	return st
}

func (s *Service) writeMetrics(ctx context.Context, st Status) {
	logger := s.logger()
	if s.deps.Board != nil {
		newIDs := s.deps.Board.NewRouteIDs()
		for _, c := range s.deps.Board.Clusters() {
			if err := s.deps.Influx.WritePoint(ctx, influx.SectorPoint(c, newIDs, st.Time)); err != nil {
				logger.Error("Error writing sector metrics", "sector", c.Name, "error", err)
			}
		}
	}
	point := influx.FeedStatusPoint(influx.FeedStatus{
		Markers:    st.Markers,
		Visible:    st.Visible,
		NewRoutes:  st.NewRoutes,
		OpenVisits: st.OpenVisits,
		Healthy:    st.FeedError == "",
	}, st.Time)
	if err := s.deps.Influx.WritePoint(ctx, point); err != nil {
		logger.Error("Error writing feed metrics", "error", err)
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	stop, done := s.stopChan, s.doneChan
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.logger().Debug("Starting status monitor goroutine", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Tick(context.Background())
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopChan, s.doneChan
	s.stopChan = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}
