// Package adapter is the shared chassis for MCP adapter servers: the REST
// tool surface, the MCP endpoint, credential files, and CORS.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxBodyBytes bounds one tool call request body.
const maxBodyBytes = 1 << 20

// Tool is one callable action an adapter exposes. InputSchema is a JSON
// Schema object served verbatim by GET /mcp/tools; Handler receives the
// decoded request body and returns the JSON-serializable result.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     func(ctx context.Context, args map[string]any) (any, error)
}

// TextOutput is a generic text output for MCP tools.
type TextOutput struct {
	Text string `json:"text"`
}

// toolDescriptor is the wire shape of one entry in GET /mcp/tools.
type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Server hosts one adapter's tool surface over REST and MCP.
type Server struct {
	name    string
	version string
	tools   []Tool
	byName  map[string]Tool
	mcp     *mcp.Server
}

// New creates an adapter server with no tools registered.
func New(name, version string) *Server {
	return &Server{
		name:    name,
		version: version,
		byName:  make(map[string]Tool),
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    name,
			Version: version,
		}, nil),
	}
}

// Add registers a REST-callable tool. Order of registration is the order
// served by GET /mcp/tools.
func (s *Server) Add(t Tool) {
	s.tools = append(s.tools, t)
	s.byName[t.Name] = t
}

// MCP returns the underlying MCP server so adapters can register their typed
// tool handlers on it.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Handler returns the adapter's full HTTP surface: health, tool listing and
// dispatch, and the streamable MCP endpoint, all behind permissive CORS.
func (s *Server) Handler() http.Handler {
	mcpHandler := MCPHandler(s.mcp)

	mx := http.NewServeMux()
	mx.Handle("/mcp", mcpHandler)
	mx.Handle("/mcp/", mcpHandler)
	mx.HandleFunc("GET /health", s.handleHealth)
	mx.HandleFunc("GET /mcp/tools", s.handleTools)
	mx.HandleFunc("POST /mcp/tools/{tool}", s.handleCall)
	return CORS(mx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	descriptors := make([]toolDescriptor, 0, len(s.tools))
	for _, t := range s.tools {
		descriptors = append(descriptors, toolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"tools": descriptors})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("tool")
	t, ok := s.byName[name]
	if !ok {
		WriteDetail(w, http.StatusNotFound, "Not Found")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		WriteDetail(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}

	args := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &args); err != nil {
			WriteDetail(w, http.StatusBadRequest, "request body must be a JSON object")
			return
		}
	}

	if missing := missingRequired(t.InputSchema, args); missing != "" {
		WriteDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("field required: %s", missing))
		return
	}

	result, err := t.Handler(r.Context(), args)
	if err != nil {
		slog.Error("tool failed",
			slog.String("adapter", s.name),
			slog.String("tool", name),
			slog.Any("error", err))
		status := http.StatusInternalServerError
		var ae *Error
		if errors.As(err, &ae) {
			status = ae.Status
		}
		WriteDetail(w, status, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// Error is a tool failure with a specific HTTP status. Handlers return it
// when a plain 500 would mislead the caller, such as a bad client-supplied
// path.
type Error struct {
	Status int
	Msg    string
}

func (e *Error) Error() string { return e.Msg }

// Errorf builds an Error with a formatted message.
func Errorf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Msg: fmt.Sprintf(format, args...)}
}

// missingRequired returns the first required schema field absent from args.
func missingRequired(schema, args map[string]any) string {
	switch required := schema["required"].(type) {
	case []string:
		for _, field := range required {
			if _, ok := args[field]; !ok {
				return field
			}
		}
	case []any:
		for _, f := range required {
			field, ok := f.(string)
			if !ok {
				continue
			}
			if _, ok := args[field]; !ok {
				return field
			}
		}
	}
	return ""
}

// WriteJSON encodes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", slog.Any("error", err))
	}
}

// WriteDetail writes the error shape adapters use for every failure:
// {"detail": "<message>"} with the given status.
func WriteDetail(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"detail": msg})
}
