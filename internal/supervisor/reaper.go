package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// StartReaper probes running agents every ReapInterval until ctx is done.
func (s *Supervisor) StartReaper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "supervisor reaper started", "interval", s.cfg.ReapInterval)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "supervisor reaper stopped")
			return
		case <-ticker.C:
			s.Reap(ctx)
		}
	}
}

// Reap probes every running agent once. An agent that fails
// MaxHealthFailures probes in a row is marked crashed.
func (s *Supervisor) Reap(ctx context.Context) {
	s.mu.Lock()
	entries := make(map[string]*entry, len(s.procs))
	for id, e := range s.procs {
		if e.live.Load() != nil {
			entries[id] = e
		}
	}
	s.mu.Unlock()

	p := pool.New().WithMaxGoroutines(8)
	for id, e := range entries {
		p.Go(func() {
			s.probe(ctx, id, e)
		})
	}
	p.Wait()
}

func (s *Supervisor) probe(ctx context.Context, id string, e *entry) {
	cur := e.live.Load()
	if cur == nil {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
	_, pingErr := cur.runtime.Ping(pingCtx)
	cancel()
	if pingErr == nil && !exited(cur.proc) {
		e.failures.Store(0)
		return
	}
	n := e.failures.Add(1)
	slog.WarnContext(ctx, "supervisor: health probe failed", "agent_id", id, "failures", n, "error", pingErr)
	if int(n) < s.cfg.MaxHealthFailures && !exited(cur.proc) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live.Load() != cur {
		return
	}
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "supervisor: failed to load unhealthy agent", "agent_id", id, "error", err)
		return
	}
	_ = s.crashLocked(ctx, e, a, cur.proc, "runtime stopped answering health checks", pingErr)
}

// Shutdown stops every running agent. Used when the server exits.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.procs))
	for id, e := range s.procs {
		if e.live.Load() != nil {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	p := pool.New()
	for _, id := range ids {
		p.Go(func() {
			if _, err := s.Stop(ctx, id); err != nil {
				slog.ErrorContext(ctx, "supervisor: failed to stop agent on shutdown", "agent_id", id, "error", err)
			}
		})
	}
	p.Wait()
	s.watchers.Wait()
}
