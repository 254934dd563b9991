package model

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/localmcp/localmcp/internal/adapter"
)

const maxBodyBytes = 1 << 20

type statusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Server exposes the gateway over HTTP.
type Server struct {
	gw *Gateway
}

// NewServer creates the HTTP surface for a gateway.
func NewServer(gw *Gateway) *Server {
	return &Server{gw: gw}
}

// Handler returns the gateway's routes behind permissive CORS.
func (s *Server) Handler() http.Handler {
	mx := http.NewServeMux()
	mx.HandleFunc("GET /health", s.handleHealth)
	mx.HandleFunc("GET /model_info", s.handleInfo)
	mx.HandleFunc("POST /generate", s.handleGenerate)
	mx.HandleFunc("POST /load_model", s.handleLoad)
	mx.HandleFunc("POST /unload_model", s.handleUnload)
	return adapter.CORS(mx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		adapter.WriteDetail(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}

	params := DefaultParams()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &params); err != nil {
			adapter.WriteDetail(w, http.StatusBadRequest, "request body must be a JSON object")
			return
		}
	}
	if params.Prompt == "" {
		adapter.WriteDetail(w, http.StatusUnprocessableEntity, "field required: prompt")
		return
	}

	result, err := s.gw.Generate(r.Context(), params)
	if err != nil {
		slog.Error("generation failed", slog.Any("error", err))
		adapter.WriteDetail(w, http.StatusInternalServerError, "Error generating text: "+err.Error())
		return
	}
	adapter.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	adapter.WriteJSON(w, http.StatusOK, s.gw.Info())
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.Load(r.Context()); err != nil {
		slog.Error("model load failed", slog.Any("error", err))
		adapter.WriteDetail(w, http.StatusInternalServerError, "Error loading model: "+err.Error())
		return
	}
	adapter.WriteJSON(w, http.StatusOK, statusMessage{Status: "success", Message: "Model loaded into memory"})
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	s.gw.Unload()
	adapter.WriteJSON(w, http.StatusOK, statusMessage{Status: "success", Message: "Model unloaded from memory"})
}
