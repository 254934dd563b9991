package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// withPrompt returns a copy of p with the prompt set.
func (p GenerationParams) withPrompt(s string) GenerationParams {
	p.Prompt = s
	return p
}

// completionBody builds a minimal valid completions JSON response.
func completionBody(text string, tokens int) []byte {
	resp := completionResponse{
		Choices: []completionChoice{{Text: text, FinishReason: "stop"}},
		Usage:   completionUsage{CompletionTokens: tokens},
	}
	b, _ := json.Marshal(resp)
	return b
}

// backendErrorBody returns an OpenAI-format error JSON body.
func backendErrorBody(msg string) []byte {
	return []byte(fmt.Sprintf(`{"error":{"message":%q}}`, msg))
}

// fakeBackend records calls and returns canned results.
type fakeBackend struct {
	mu          sync.Mutex
	completes   int
	pings       int
	lastParams  GenerationParams
	result      *Completion
	completeErr error
	pingErr     error
}

func (f *fakeBackend) Complete(_ context.Context, params GenerationParams) (*Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	f.lastParams = params
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &Completion{Text: " world", TokensGenerated: 5}, nil
}

func (f *fakeBackend) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.pingErr
}

func (f *fakeBackend) calls() (completes, pings int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completes, f.pings
}

// testConfig keeps retries fast for tests.
func testConfig() Config {
	return Config{
		ModelID:    "test/tiny-1b",
		Device:     "cpu",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}
}

func TestBackendComplete(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method %q", r.Method)
			}
			if r.URL.Path != "/v1/completions" {
				t.Errorf("unexpected path %q", r.URL.Path)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("Authorization = %q, want bearer token", auth)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode request: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(completionBody(" there", 7))
		}))
		defer srv.Close()

		b := NewBackend(srv.URL+"/v1", "test-key", "test-model", 5*time.Second)
		comp, err := b.Complete(context.Background(), DefaultParams().withPrompt("hello"))
		if err != nil {
			t.Fatalf("Complete() unexpected error: %v", err)
		}
		if comp.Text != " there" {
			t.Errorf("Text = %q, want %q", comp.Text, " there")
		}
		if comp.TokensGenerated != 7 {
			t.Errorf("TokensGenerated = %d, want 7", comp.TokensGenerated)
		}

		if got["prompt"] != "hello" {
			t.Errorf("prompt = %v, want hello", got["prompt"])
		}
		if got["model"] != "test-model" {
			t.Errorf("model = %v, want test-model", got["model"])
		}
		if got["max_tokens"] != float64(512) {
			t.Errorf("max_tokens = %v, want 512", got["max_tokens"])
		}
		if got["temperature"] != 0.7 {
			t.Errorf("temperature = %v, want 0.7", got["temperature"])
		}
		if got["top_p"] != 0.9 {
			t.Errorf("top_p = %v, want 0.9", got["top_p"])
		}
		if got["top_k"] != float64(50) {
			t.Errorf("top_k = %v, want 50", got["top_k"])
		}
		if got["repetition_penalty"] != 1.1 {
			t.Errorf("repetition_penalty = %v, want 1.1", got["repetition_penalty"])
		}
	})

	t.Run("greedy when sampling disabled", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write(completionBody("x", 1))
		}))
		defer srv.Close()

		params := DefaultParams().withPrompt("hello")
		params.DoSample = false
		b := NewBackend(srv.URL, "", "", 5*time.Second)
		if _, err := b.Complete(context.Background(), params); err != nil {
			t.Fatalf("Complete() unexpected error: %v", err)
		}
		if got["temperature"] != float64(0) {
			t.Errorf("temperature = %v, want 0", got["temperature"])
		}
	})

	t.Run("backend error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write(backendErrorBody("model is overloaded"))
		}))
		defer srv.Close()

		b := NewBackend(srv.URL, "", "", 5*time.Second)
		_, err := b.Complete(context.Background(), DefaultParams().withPrompt("hello"))
		var be *BackendError
		if !errors.As(err, &be) {
			t.Fatalf("Complete() error = %v, want *BackendError", err)
		}
		if be.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("StatusCode = %d, want 503", be.StatusCode)
		}
		if be.Message != "model is overloaded" {
			t.Errorf("Message = %q, want %q", be.Message, "model is overloaded")
		}
		if !be.IsTransient() {
			t.Error("IsTransient() = false for 503, want true")
		}
	})

	t.Run("empty choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		b := NewBackend(srv.URL, "", "", 5*time.Second)
		_, err := b.Complete(context.Background(), DefaultParams().withPrompt("hello"))
		if err == nil || !strings.Contains(err.Error(), "empty choices") {
			t.Errorf("Complete() error = %v, want empty choices error", err)
		}
	})
}

func TestBackendPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	b := NewBackend(srv.URL, "", "", 5*time.Second)
	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("Ping() unexpected error: %v", err)
	}

	down := NewBackend("http://127.0.0.1:1", "", "", time.Second)
	if err := down.Ping(context.Background()); err == nil {
		t.Error("Ping() against closed port succeeded, want error")
	}
}

func TestGatewayLazyLoad(t *testing.T) {
	fake := &fakeBackend{}
	gw := NewGateway(testConfig(), fake)

	if gw.Loaded() {
		t.Fatal("Loaded() = true before first generate")
	}

	res, err := gw.Generate(context.Background(), DefaultParams().withPrompt("hello"))
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if res.GeneratedText != " world" {
		t.Errorf("GeneratedText = %q, want %q", res.GeneratedText, " world")
	}
	if res.TokensGenerated != 5 {
		t.Errorf("TokensGenerated = %d, want 5", res.TokensGenerated)
	}
	if res.GenerationTime < 0 {
		t.Errorf("GenerationTime = %v, want >= 0", res.GenerationTime)
	}
	if !gw.Loaded() {
		t.Error("Loaded() = false after generate")
	}

	if _, err := gw.Generate(context.Background(), DefaultParams().withPrompt("again")); err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if _, pings := fake.calls(); pings != 1 {
		t.Errorf("pings = %d, want 1 (loaded model must not re-verify)", pings)
	}
}

func TestGatewayRetries(t *testing.T) {
	t.Run("transient errors retried", func(t *testing.T) {
		fake := &fakeBackend{completeErr: errors.New("connection reset")}
		gw := NewGateway(testConfig(), fake)

		_, err := gw.Generate(context.Background(), DefaultParams().withPrompt("hello"))
		if err == nil {
			t.Fatal("Generate() succeeded, want error")
		}
		if completes, _ := fake.calls(); completes != 3 {
			t.Errorf("complete attempts = %d, want 3 (initial + 2 retries)", completes)
		}
	})

	t.Run("client rejections not retried", func(t *testing.T) {
		fake := &fakeBackend{completeErr: &BackendError{StatusCode: 400, Message: "bad prompt"}}
		gw := NewGateway(testConfig(), fake)

		_, err := gw.Generate(context.Background(), DefaultParams().withPrompt("hello"))
		if err == nil {
			t.Fatal("Generate() succeeded, want error")
		}
		if completes, _ := fake.calls(); completes != 1 {
			t.Errorf("complete attempts = %d, want 1", completes)
		}
	})
}

func TestServerGenerate(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		fake := &fakeBackend{}
		srv := httptest.NewServer(NewServer(NewGateway(testConfig(), fake)).Handler())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(`{"prompt":"Once upon"}`))
		if err != nil {
			t.Fatalf("POST /generate: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}

		var out GenerationResult
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if out.GeneratedText != " world" {
			t.Errorf("generated_text = %q, want %q", out.GeneratedText, " world")
		}
		if out.TokensGenerated != 5 {
			t.Errorf("tokens_generated = %d, want 5", out.TokensGenerated)
		}

		fake.mu.Lock()
		got := fake.lastParams
		fake.mu.Unlock()
		want := DefaultParams().withPrompt("Once upon")
		if got != want {
			t.Errorf("backend params = %+v, want %+v", got, want)
		}
	})

	t.Run("explicit values override defaults", func(t *testing.T) {
		fake := &fakeBackend{}
		srv := httptest.NewServer(NewServer(NewGateway(testConfig(), fake)).Handler())
		defer srv.Close()

		body := `{"prompt":"hi","max_new_tokens":32,"temperature":0,"do_sample":false}`
		resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST /generate: %v", err)
		}
		resp.Body.Close()

		fake.mu.Lock()
		got := fake.lastParams
		fake.mu.Unlock()
		if got.MaxNewTokens != 32 {
			t.Errorf("MaxNewTokens = %d, want 32", got.MaxNewTokens)
		}
		if got.Temperature != 0 {
			t.Errorf("Temperature = %v, want 0", got.Temperature)
		}
		if got.DoSample {
			t.Error("DoSample = true, want false")
		}
		if got.TopP != 0.9 {
			t.Errorf("TopP = %v, want default 0.9", got.TopP)
		}
	})

	t.Run("missing prompt", func(t *testing.T) {
		srv := httptest.NewServer(NewServer(NewGateway(testConfig(), &fakeBackend{})).Handler())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(`{}`))
		if err != nil {
			t.Fatalf("POST /generate: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", resp.StatusCode)
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		fake := &fakeBackend{completeErr: &BackendError{StatusCode: 500, Message: "cuda out of memory"}}
		srv := httptest.NewServer(NewServer(NewGateway(testConfig(), fake)).Handler())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(`{"prompt":"hi"}`))
		if err != nil {
			t.Fatalf("POST /generate: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", resp.StatusCode)
		}
		var detail map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if !strings.HasPrefix(detail["detail"], "Error generating text: ") {
			t.Errorf("detail = %q, want Error generating text prefix", detail["detail"])
		}
	})
}

func TestServerLoadUnload(t *testing.T) {
	fake := &fakeBackend{}
	srv := httptest.NewServer(NewServer(NewGateway(testConfig(), fake)).Handler())
	defer srv.Close()

	post := func(path string) (int, map[string]string) {
		t.Helper()
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		defer resp.Body.Close()
		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
		return resp.StatusCode, body
	}

	modelLoaded := func() bool {
		t.Helper()
		resp, err := http.Get(srv.URL + "/model_info")
		if err != nil {
			t.Fatalf("GET /model_info: %v", err)
		}
		defer resp.Body.Close()
		var info Info
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			t.Fatalf("decode model_info: %v", err)
		}
		return info.ModelLoaded
	}

	if modelLoaded() {
		t.Fatal("model_loaded = true before load")
	}

	status, body := post("/load_model")
	if status != http.StatusOK {
		t.Fatalf("load status = %d, want 200", status)
	}
	if body["message"] != "Model loaded into memory" {
		t.Errorf("load message = %q, want %q", body["message"], "Model loaded into memory")
	}
	if !modelLoaded() {
		t.Error("model_loaded = false after load")
	}

	// Loading again keeps the same response and does not re-verify.
	status, body = post("/load_model")
	if status != http.StatusOK || body["message"] != "Model loaded into memory" {
		t.Errorf("second load = %d %q", status, body["message"])
	}
	if _, pings := fake.calls(); pings != 1 {
		t.Errorf("pings = %d, want 1", pings)
	}

	status, body = post("/unload_model")
	if status != http.StatusOK {
		t.Fatalf("unload status = %d, want 200", status)
	}
	if body["message"] != "Model unloaded from memory" {
		t.Errorf("unload message = %q, want %q", body["message"], "Model unloaded from memory")
	}
	if modelLoaded() {
		t.Error("model_loaded = true after unload")
	}
}

func TestServerLoadFailure(t *testing.T) {
	fake := &fakeBackend{pingErr: &BackendError{StatusCode: 401, Message: "invalid api key"}}
	srv := httptest.NewServer(NewServer(NewGateway(testConfig(), fake)).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/load_model", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /load_model: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	var detail map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(detail["detail"], "Error loading model: ") {
		t.Errorf("detail = %q, want Error loading model prefix", detail["detail"])
	}
}

func TestInfoShape(t *testing.T) {
	t.Run("no gpu", func(t *testing.T) {
		gw := NewGateway(testConfig(), &fakeBackend{})
		info := gw.Info()
		if info.ModelID != "test/tiny-1b" {
			t.Errorf("ModelID = %q", info.ModelID)
		}
		if info.Device != "cpu" {
			t.Errorf("Device = %q, want cpu", info.Device)
		}
		if info.Dtype != "torch.float32" {
			t.Errorf("Dtype = %q, want torch.float32 on cpu", info.Dtype)
		}
		if info.Quantization != "None" {
			t.Errorf("Quantization = %q, want None", info.Quantization)
		}
		if len(info.GPUInfo) != 0 {
			t.Errorf("GPUInfo = %v, want empty", info.GPUInfo)
		}
	})

	t.Run("gpu configured", func(t *testing.T) {
		cfg := testConfig()
		cfg.Device = "cuda"
		cfg.Dtype = ""
		cfg.Use4Bit = true
		cfg.FlashAttention = true
		cfg.GPUName = "NVIDIA RTX 4090"
		cfg.GPUMemoryTotal = 24.0

		info := NewGateway(cfg, &fakeBackend{}).Info()
		if info.Dtype != "torch.bfloat16" {
			t.Errorf("Dtype = %q, want torch.bfloat16 on cuda", info.Dtype)
		}
		if info.Quantization != "4-bit" {
			t.Errorf("Quantization = %q, want 4-bit", info.Quantization)
		}
		if !info.FlashAttention {
			t.Error("FlashAttention = false, want true")
		}
		if info.GPUInfo["gpu_name"] != "NVIDIA RTX 4090" {
			t.Errorf("gpu_name = %v", info.GPUInfo["gpu_name"])
		}
		if info.GPUInfo["gpu_memory_total"] != 24.0 {
			t.Errorf("gpu_memory_total = %v, want 24.0", info.GPUInfo["gpu_memory_total"])
		}
		for _, key := range []string{"gpu_memory_allocated", "gpu_memory_reserved"} {
			if _, ok := info.GPUInfo[key]; !ok {
				t.Errorf("GPUInfo missing %q", key)
			}
		}
	})
}
