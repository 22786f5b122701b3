package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/cache"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/judge"
	"github.com/wardenhq/warden/internal/llm"
	"github.com/wardenhq/warden/internal/proxy"
	"github.com/wardenhq/warden/internal/rulebook"
	"github.com/wardenhq/warden/internal/server"
)

// TestEnvironment wires a full WAF: SQLite event store, rulebook store with
// watcher, in-memory verdict cache, a scriptable OpenAI-compatible backend,
// a mock upstream, and the HTTP server in front of it all.
type TestEnvironment struct {
	Server       *server.Server
	HTTPServer   *httptest.Server
	UpstreamMock *UpstreamMock
	Backend      *MockBackend
	EventStore   events.Store
	Recorder     *events.Recorder
	Rules        *rulebook.Store
	Judge        *judge.Judge
	RulebookPath string
	DBPath       string

	t *testing.T
}

// SetupTestEnvironment builds the full stack against temporary storage.
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "events.db")
	rulebookPath := filepath.Join(tmpDir, "rulebook.json")

	backend := NewMockBackend()
	upstream := NewUpstreamMock()

	eventStore, err := events.NewSQLiteStore(dbPath)
	require.NoError(t, err)

	recorder := events.NewRecorder(eventStore, 256)

	rules, err := rulebook.NewStore(rulebookPath)
	require.NoError(t, err)
	require.NoError(t, rules.Load())
	require.NoError(t, rules.Watch())

	gateway := llm.NewOpenAI(config.LLMConfig{
		BaseURL:            backend.Server.URL,
		APIKey:             "test-key",
		Model:              "test-model",
		JudgeTimeoutMs:     2000,
		JudgeMaxTokens:     150,
		JudgeTemperature:   0.0,
		LearnerTimeoutMs:   5000,
		LearnerMaxTokens:   2048,
		LearnerTemperature: 0.3,
	})

	j := judge.New(gateway, rules, cache.NewMemory(), recorder, time.Minute)

	forwarder, err := proxy.NewForwarder(upstream.Server.URL, 5*time.Second)
	require.NoError(t, err)
	handler := proxy.NewHandler(j, forwarder, 65536)

	health := server.NewHealthTracker(gateway, rules)
	srv := server.New(server.Config{
		ListenAddr:     "127.0.0.1:0",
		MetricsEnabled: true,
	}, handler, health, j, eventStore)

	env := &TestEnvironment{
		Server:       srv,
		HTTPServer:   httptest.NewServer(srv.Handler()),
		UpstreamMock: upstream,
		Backend:      backend,
		EventStore:   eventStore,
		Recorder:     recorder,
		Rules:        rules,
		Judge:        j,
		RulebookPath: rulebookPath,
		DBPath:       dbPath,
		t:            t,
	}

	t.Cleanup(func() {
		env.HTTPServer.Close()
		env.Recorder.Close()
		env.Rules.Close()
		env.EventStore.Close()
		env.UpstreamMock.Server.Close()
		env.Backend.Server.Close()
	})

	return env
}

// Get issues a GET through the WAF.
func (e *TestEnvironment) Get(path string) *http.Response {
	e.t.Helper()
	resp, err := http.Get(e.HTTPServer.URL + path)
	require.NoError(e.t, err)
	return resp
}

// WaitForEvents polls until the audit log holds at least minCount entries.
func (e *TestEnvironment) WaitForEvents(minCount int, timeout time.Duration) []events.Entry {
	e.t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		entries, err := e.EventStore.RecentEvents(e.t.Context(), 100)
		require.NoError(e.t, err)
		if len(entries) >= minCount {
			return entries
		}
		time.Sleep(50 * time.Millisecond)
	}
	e.t.Fatalf("timeout waiting for %d audit entries", minCount)
	return nil
}

// MockBackend is an OpenAI-compatible chat completion server whose next
// reply is scripted per test.
type MockBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	reply    string
	status   int
	delay    time.Duration
	requests atomic.Int64
}

func NewMockBackend() *MockBackend {
	b := &MockBackend{status: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"test-model","object":"model"}]}`)
	})
	mux.HandleFunc("/chat/completions", b.handleCompletion)
	b.Server = httptest.NewServer(mux)
	return b
}

// Respond scripts the content of the next assistant messages.
func (b *MockBackend) Respond(content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reply = content
	b.status = http.StatusOK
	b.delay = 0
}

// Fail makes the backend return the given status.
func (b *MockBackend) Fail(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

// Delay makes the backend sleep before answering.
func (b *MockBackend) Delay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// Requests reports how many completion calls arrived.
func (b *MockBackend) Requests() int64 {
	return b.requests.Load()
}

func (b *MockBackend) handleCompletion(w http.ResponseWriter, r *http.Request) {
	b.requests.Add(1)

	b.mu.Lock()
	reply, status, delay := b.reply, b.status, b.delay
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != http.StatusOK {
		http.Error(w, "backend unavailable", status)
		return
	}

	resp := map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": reply,
			},
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// UpstreamMock records what reached the protected service.
type UpstreamMock struct {
	Server *httptest.Server
	hits   atomic.Int64
}

func NewUpstreamMock() *UpstreamMock {
	u := &UpstreamMock{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"message":"upstream reached","path":%q}`, r.URL.Path)
	}))
	return u
}

func (u *UpstreamMock) Hits() int64 {
	return u.hits.Load()
}
