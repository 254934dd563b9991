// Package model implements the model-serving gateway: generate, model_info,
// load_model, and unload_model over HTTP, with actual generation delegated to
// an OpenAI-compatible completions backend.
package model

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"
)

// GenerationParams are the sampling controls accepted by the generate
// endpoint.
type GenerationParams struct {
	Prompt             string  `json:"prompt"`
	MaxNewTokens       int     `json:"max_new_tokens"`
	Temperature        float64 `json:"temperature"`
	TopP               float64 `json:"top_p"`
	TopK               int     `json:"top_k"`
	RepetitionPenalty  float64 `json:"repetition_penalty"`
	DoSample           bool    `json:"do_sample"`
	NumReturnSequences int     `json:"num_return_sequences"`
}

// DefaultParams returns generation parameters with their documented
// defaults. Decoding a request body over this value keeps the defaults for
// absent fields.
func DefaultParams() GenerationParams {
	return GenerationParams{
		MaxNewTokens:       512,
		Temperature:        0.7,
		TopP:               0.9,
		TopK:               50,
		RepetitionPenalty:  1.1,
		DoSample:           true,
		NumReturnSequences: 1,
	}
}

// GenerationResult is the generate endpoint response.
type GenerationResult struct {
	GeneratedText   string  `json:"generated_text"`
	TokensGenerated int     `json:"tokens_generated"`
	GenerationTime  float64 `json:"generation_time"`
}

// Info is the model_info endpoint response.
type Info struct {
	ModelID           string         `json:"model_id"`
	Device            string         `json:"device"`
	Dtype             string         `json:"dtype"`
	Quantization      string         `json:"quantization"`
	FlashAttention    bool           `json:"flash_attention"`
	BetterTransformer bool           `json:"better_transformer"`
	ModelLoaded       bool           `json:"model_loaded"`
	GPUInfo           map[string]any `json:"gpu_info"`
}

// Config describes the served model and the retry posture for backend calls.
type Config struct {
	ModelID           string
	Device            string
	Dtype             string
	Use4Bit           bool
	FlashAttention    bool
	BetterTransformer bool

	// GPU attributes reported by model_info. An empty GPUName means the
	// runtime has no GPU and gpu_info is reported empty.
	GPUName        string
	GPUMemoryTotal float64

	// Per-attempt timeout and bounded retry for backend calls.
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

func (c *Config) defaults() {
	if c.ModelID == "" {
		c.ModelID = "qwq/qwq-32b"
	}
	if c.Device == "" {
		c.Device = "cuda"
	}
	if c.Dtype == "" {
		if c.Device == "cuda" {
			c.Dtype = "torch.bfloat16"
		} else {
			c.Dtype = "torch.float32"
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
}

// Gateway tracks the loaded state of the model and runs all backend calls
// under a per-attempt timeout with bounded retries. Loading verifies that
// the backend is reachable rather than moving any weights; the flag drives
// what model_info reports and when generate lazy-loads.
type Gateway struct {
	cfg     Config
	backend Completer

	mu     sync.Mutex
	loaded bool

	generate failsafe.Executor[*Completion]
	probe    failsafe.Executor[any]
}

// NewGateway creates a gateway over the given backend.
func NewGateway(cfg Config, backend Completer) *Gateway {
	cfg.defaults()

	generateRetry := retrypolicy.NewBuilder[*Completion]().
		HandleIf(func(_ *Completion, err error) bool { return transient(err) }).
		WithDelay(cfg.RetryDelay).
		WithMaxRetries(cfg.MaxRetries).
		Build()
	probeRetry := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool { return transient(err) }).
		WithDelay(cfg.RetryDelay).
		WithMaxRetries(cfg.MaxRetries).
		Build()

	return &Gateway{
		cfg:      cfg,
		backend:  backend,
		generate: failsafe.With[*Completion](generateRetry, timeout.New[*Completion](cfg.Timeout)),
		probe:    failsafe.With[any](probeRetry, timeout.New[any](cfg.Timeout)),
	}
}

// transient reports whether a backend call is worth retrying. Backend
// rejections keep their status semantics; anything else (network failures,
// timeouts) is treated as transient.
func transient(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.IsTransient()
	}
	return err != nil
}

// Loaded reports whether the model is considered loaded.
func (g *Gateway) Loaded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loaded
}

// Load marks the model loaded after verifying the backend responds. Loading
// an already loaded model is a no-op.
func (g *Gateway) Load(ctx context.Context) error {
	g.mu.Lock()
	if g.loaded {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	slog.Info("loading model",
		slog.String("model", g.cfg.ModelID),
		slog.String("device", g.cfg.Device),
		slog.String("dtype", g.cfg.Dtype))

	err := g.probe.WithContext(ctx).RunWithExecution(func(exec failsafe.Execution[any]) error {
		return g.backend.Ping(exec.Context())
	})
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.loaded = true
	g.mu.Unlock()
	slog.Info("model loaded successfully")
	return nil
}

// Unload marks the model unloaded.
func (g *Gateway) Unload() {
	g.mu.Lock()
	wasLoaded := g.loaded
	g.loaded = false
	g.mu.Unlock()
	if wasLoaded {
		slog.Info("model unloaded from memory")
	}
}

// Generate produces a completion for the given parameters, loading the
// model first if needed.
func (g *Gateway) Generate(ctx context.Context, params GenerationParams) (*GenerationResult, error) {
	if err := g.Load(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	comp, err := g.generate.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[*Completion]) (*Completion, error) {
		return g.backend.Complete(exec.Context(), params)
	})
	if err != nil {
		return nil, err
	}

	return &GenerationResult{
		GeneratedText:   comp.Text,
		TokensGenerated: comp.TokensGenerated,
		GenerationTime:  time.Since(start).Seconds(),
	}, nil
}

// Info reports the model metadata and loaded state.
func (g *Gateway) Info() Info {
	quant := "None"
	if g.cfg.Use4Bit {
		quant = "4-bit"
	}

	gpu := map[string]any{}
	if g.cfg.GPUName != "" {
		// Allocation metering belongs to the runtime behind the backend;
		// the gateway reports the configured device only.
		gpu = map[string]any{
			"gpu_name":             g.cfg.GPUName,
			"gpu_memory_total":     g.cfg.GPUMemoryTotal,
			"gpu_memory_allocated": 0.0,
			"gpu_memory_reserved":  0.0,
		}
	}

	return Info{
		ModelID:           g.cfg.ModelID,
		Device:            g.cfg.Device,
		Dtype:             g.cfg.Dtype,
		Quantization:      quant,
		FlashAttention:    g.cfg.FlashAttention,
		BetterTransformer: g.cfg.BetterTransformer,
		ModelLoaded:       g.Loaded(),
		GPUInfo:           gpu,
	}
}
