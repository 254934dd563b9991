// Package dashboard serves the monitoring UI: an HTML overview of every
// registered service and model, JSON status APIs, Prometheus metrics, and a
// WebSocket stream of status lines.
package dashboard

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/localmcp/localmcp/internal/adapter"
	"github.com/localmcp/localmcp/internal/probe"
	"github.com/localmcp/localmcp/internal/registry"
)

// Server renders the dashboard. It keeps no health state of its own: every
// page load and status call runs a fresh probe round, so concurrent requests
// may see slightly different snapshots.
type Server struct {
	configPath string
	prober     *probe.Prober
	hub        *Hub
	metrics    *Metrics
}

// New creates a dashboard server over the registry at configPath.
func New(configPath string, prober *probe.Prober, hub *Hub, metrics *Metrics) *Server {
	return &Server{
		configPath: configPath,
		prober:     prober,
		hub:        hub,
		metrics:    metrics,
	}
}

// Handler returns the full dashboard surface behind request logging and
// permissive CORS.
func (s *Server) Handler() http.Handler {
	staticDir, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}

	mx := http.NewServeMux()
	mx.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticDir))))
	mx.HandleFunc("GET /{$}", s.handleIndex)
	mx.HandleFunc("GET /api/services", s.handleServices)
	mx.HandleFunc("GET /api/models", s.handleModels)
	mx.HandleFunc("GET /api/status", s.handleStatus)
	mx.HandleFunc("GET /health", s.handleHealth)
	mx.HandleFunc("GET /ws", s.hub.ServeWS)
	mx.Handle("GET /metrics", s.metrics.Handler())
	return middleware.Logger(adapter.CORS(mx))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}

// handleServices returns the raw registry entries, disabled ones included.
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	cfg, err := registry.Load(s.configPath)
	if err != nil {
		slog.Error("list services", slog.Any("error", err))
		adapter.WriteDetail(w, http.StatusInternalServerError, "load config: "+err.Error())
		return
	}
	adapter.WriteJSON(w, http.StatusOK, map[string]any{"services": cfg.Services})
}

// handleModels returns the raw registry entries, disabled ones included.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	cfg, err := registry.Load(s.configPath)
	if err != nil {
		slog.Error("list models", slog.Any("error", err))
		adapter.WriteDetail(w, http.StatusInternalServerError, "load config: "+err.Error())
		return
	}
	adapter.WriteJSON(w, http.StatusOK, map[string]any{"models": cfg.Models})
}

type statusResponse struct {
	Services  []probe.Status `json:"services"`
	Models    []probe.Status `json:"models"`
	Timestamp float64        `json:"timestamp"`
}

// handleStatus probes every enabled entry and reports the boolean outcomes
// with a unix-seconds timestamp.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg, err := registry.Load(s.configPath)
	if err != nil {
		slog.Error("status", slog.Any("error", err))
		adapter.WriteDetail(w, http.StatusInternalServerError, "load config: "+err.Error())
		return
	}

	ctx := r.Context()
	services := s.prober.ProbeAll(ctx, registry.Enabled(cfg.Services))
	models := s.prober.ProbeAll(ctx, registry.Enabled(cfg.Models))
	s.metrics.observeStatuses("service", services)
	s.metrics.observeStatuses("model", models)
	s.metrics.roundDone("status")

	adapter.WriteJSON(w, http.StatusOK, statusResponse{
		Services:  services,
		Models:    models,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	view, err := s.buildView(r.Context())
	if err != nil {
		slog.Error("render dashboard", slog.Any("error", err))
		http.Error(w, "failed to load configuration", http.StatusInternalServerError)
		return
	}
	s.metrics.renders.Inc()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "dashboard.html", view); err != nil {
		slog.Error("execute template", slog.Any("error", err))
	}
}

// serviceView is one service card: probe outcome plus the tools fetched from
// it when healthy.
type serviceView struct {
	Name    string
	URL     string
	Healthy bool
	Tools   []probe.Tool
}

// modelView is one model card: probe outcome plus its model_info payload
// when healthy.
type modelView struct {
	Name    string
	URL     string
	Healthy bool
	Info    map[string]any
}

type dashboardView struct {
	Services       []serviceView
	Models         []modelView
	ServicesOnline int
	ModelsOnline   int
	TotalTools     int
}

// buildView probes every enabled entry concurrently and aggregates tools and
// model info from the healthy ones.
func (s *Server) buildView(ctx context.Context) (dashboardView, error) {
	cfg, err := registry.Load(s.configPath)
	if err != nil {
		return dashboardView{}, err
	}

	enabledServices := registry.Enabled(cfg.Services)
	enabledModels := registry.Enabled(cfg.Models)
	services := make([]serviceView, len(enabledServices))
	models := make([]modelView, len(enabledModels))

	var wg sync.WaitGroup
	for i, e := range enabledServices {
		wg.Add(1)
		go func(idx int, entry registry.Entry) {
			defer wg.Done()
			sv := serviceView{Name: entry.Name, URL: entry.URL}
			if sv.Healthy = s.prober.Probe(ctx, entry); sv.Healthy {
				sv.Tools = s.prober.FetchTools(ctx, entry)
			}
			services[idx] = sv
		}(i, e)
	}
	for i, e := range enabledModels {
		wg.Add(1)
		go func(idx int, entry registry.Entry) {
			defer wg.Done()
			mv := modelView{Name: entry.Name, URL: entry.URL}
			if mv.Healthy = s.prober.Probe(ctx, entry); mv.Healthy {
				mv.Info = s.prober.FetchModelInfo(ctx, entry)
			}
			models[idx] = mv
		}(i, e)
	}
	wg.Wait()

	view := dashboardView{Services: services, Models: models}
	for _, sv := range services {
		view.TotalTools += len(sv.Tools)
		if sv.Healthy {
			view.ServicesOnline++
		}
		s.metrics.setUp("service", sv.Name, sv.Healthy)
	}
	for _, mv := range models {
		if mv.Healthy {
			view.ModelsOnline++
		}
		s.metrics.setUp("model", mv.Name, mv.Healthy)
	}
	s.metrics.roundDone("render")
	return view, nil
}
