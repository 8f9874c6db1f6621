package lab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-replset/pkg/health"
	"github.com/dd0wney/cluso-replset/pkg/logging"
)

const systemMetricsInterval = 5 * time.Second

// Server exposes a lab's replica set over HTTP: health probes,
// prometheus metrics, the describe snapshot and member stop/start.
type Server struct {
	lab     *Lab
	health  *health.HealthChecker
	mux     *http.ServeMux
	started time.Time
	logger  logging.Logger
}

// NewServer wires the health checks and routes for l
func NewServer(l *Lab) *Server {
	s := &Server{
		lab:     l,
		health:  health.NewHealthChecker(),
		mux:     http.NewServeMux(),
		started: time.Now(),
		logger:  l.logger.With(logging.Component("server")),
	}
	s.health.SetLogger(s.logger)

	s.health.RegisterLivenessCheck("lab", func() health.Check {
		return health.SimpleCheck("lab")
	})

	clusterCheck := health.ClusterCheck(s.clusterState)
	s.health.RegisterReadinessCheck("cluster", clusterCheck)
	s.health.RegisterCheck("cluster", clusterCheck)

	s.health.RegisterCheck("replication", health.ReplicationLagCheck(s.replicationLag, l.cfg.Serve.MaxLag))

	s.health.RegisterCheck("memory", health.MemoryCheck(func() (uint64, uint64) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.Alloc, m.Sys
	}))

	s.mux.HandleFunc("GET /health", s.health.HTTPHandler())
	s.mux.HandleFunc("GET /ready", s.health.ReadinessHandler())
	s.mux.HandleFunc("GET /live", s.health.LivenessHandler())
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(l.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /members/{id}/stop", s.handleMember(false))
	s.mux.HandleFunc("POST /members/{id}/start", s.handleMember(true))
	return s
}

// Handler returns the server's routes
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("lab server listening", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("lab server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.updateSystemMetrics(gctx)
		return nil
	})
	return g.Wait()
}

func (s *Server) updateSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		s.lab.metrics.UpdateSystemMetrics(s.started)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) clusterState() health.ClusterState {
	st := s.lab.Status()
	return health.ClusterState{
		Phase:     st.Phase.String(),
		Primary:   st.Primary,
		Term:      st.Term,
		CommitSeq: st.Commit.Seq,
		Reachable: st.Reachable,
		Members:   st.Members,
	}
}

func (s *Server) replicationLag() map[string]uint64 {
	st := s.lab.Status()
	lag := make(map[string]uint64, len(st.Nodes))
	for _, n := range st.Nodes {
		if n.Reachable {
			lag[n.ID] = n.Lag
		}
	}
	return lag
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.lab.Status())
}

// handleMember stops or restarts the member named in the path
func (s *Server) handleMember(reachable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := s.lab.c.Node(r.PathValue("id"))
		if err != nil {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}

		if reachable {
			n.MarkReachable()
		} else {
			n.MarkUnreachable()
		}
		s.logger.Info("member toggled", logging.NodeID(n.ID()), logging.Bool("reachable", reachable))
		s.writeJSON(w, http.StatusOK, s.lab.c.Describe()[n.ID()])
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", logging.Int("code", code), logging.Error(err))
	}
}
