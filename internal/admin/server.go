// JSON control API for missions, plus telemetry streaming.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetsim/internal/logging"
	"fleetsim/internal/mission"
	"fleetsim/internal/sched"
	"fleetsim/internal/store"
	"fleetsim/internal/telemetry"
)

type Server struct {
	missions store.MissionStore
	mgr      *sched.Manager
	hub      *telemetry.Hub
	reg      *prometheus.Registry
}

// NewServer wires the control API. reg may be nil to disable /metrics.
func NewServer(missions store.MissionStore, mgr *sched.Manager, hub *telemetry.Hub, reg *prometheus.Registry) *Server {
	return &Server{missions: missions, mgr: mgr, hub: hub, reg: reg}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /missions", s.handleListMissions)
	mux.HandleFunc("GET /missions/{id}", s.handleGetMission)
	mux.HandleFunc("POST /missions/{id}/start", s.control(mission.OpStart))
	mux.HandleFunc("POST /missions/{id}/pause", s.control(mission.OpPause))
	mux.HandleFunc("POST /missions/{id}/resume", s.control(mission.OpResume))
	mux.HandleFunc("POST /missions/{id}/abort", s.control(mission.OpAbort))
	mux.HandleFunc("GET /telemetry", s.handleTelemetry)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.routes(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleListMissions(w http.ResponseWriter, r *http.Request) {
	var (
		missions []*mission.Mission
		err      error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		missions, err = s.missions.ListMissionsByStatus(r.Context(), mission.Status(status))
	} else {
		missions, err = s.missions.ListMissions(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, missions)
}

func (s *Server) handleGetMission(w http.ResponseWriter, r *http.Request) {
	m, err := s.missions.GetMission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) control(op mission.Op) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var err error
		switch op {
		case mission.OpStart:
			err = s.mgr.Start(r.Context(), id)
		case mission.OpPause:
			err = s.mgr.Pause(r.Context(), id)
		case mission.OpResume:
			err = s.mgr.Resume(r.Context(), id)
		case mission.OpAbort:
			err = s.mgr.Abort(r.Context(), id)
		}
		if err != nil {
			writeControlError(w, err)
			return
		}
		m, err := s.missions.GetMission(r.Context(), id)
		if err != nil {
			writeControlError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Snapshot())
}

// handleEvents streams telemetry as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	events, cancel := s.hub.Subscribe()
	defer cancel()

	log := logging.FromContext(r.Context())
	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				log.Error("marshal telemetry event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", telemetry.EventMissionProgress, data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, mission.ErrPrecondition):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
