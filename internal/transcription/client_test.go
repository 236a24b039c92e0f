package transcription

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedServer answers each request with the next status/body pair
type scriptedServer struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
	authSeen  []string
}

type scriptedResponse struct {
	status int
	body   string
}

func (s *scriptedServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.authSeen = append(s.authSeen, r.Header.Get("Authorization"))
	s.mu.Unlock()

	if idx >= len(s.responses) {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	resp := s.responses[idx]
	w.WriteHeader(resp.status)
	w.Write([]byte(resp.body))
}

func (s *scriptedServer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestClient(t *testing.T, endpoint string, maxRetries int, retryDelay time.Duration) (*Client, *[]time.Duration) {
	t.Helper()

	client, err := NewClient(Config{
		Endpoint:   endpoint,
		APIKey:     "test-token",
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	slept := &[]time.Duration{}
	client.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}

	return client, slept
}

func TestWarmUpBackoffSchedule(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{
		{http.StatusServiceUnavailable, ""},
		{http.StatusServiceUnavailable, ""},
		{http.StatusOK, `{"text": ""}`},
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	client, slept := newTestClient(t, ts.URL, 5, 2*time.Second)

	if !client.WarmUp(context.Background()) {
		t.Fatal("Expected warm-up to succeed on the third attempt")
	}

	if srv.callCount() != 3 {
		t.Errorf("Expected 3 probe requests, got %d", srv.callCount())
	}

	// Backoff for attempt k (0-indexed) is RetryDelay * 2^k
	expected := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(expected) {
		t.Fatalf("Expected %d sleeps, got %d: %v", len(expected), len(*slept), *slept)
	}
	for i, d := range expected {
		if (*slept)[i] != d {
			t.Errorf("Sleep %d: expected %v, got %v", i, d, (*slept)[i])
		}
	}

	if !client.Warm() {
		t.Error("Expected client to be warm after successful warm-up")
	}
}

func TestWarmUpExhaustsRetries(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{
		{http.StatusServiceUnavailable, ""},
		{http.StatusServiceUnavailable, ""},
		{http.StatusServiceUnavailable, ""},
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	client, slept := newTestClient(t, ts.URL, 3, time.Second)

	if client.WarmUp(context.Background()) {
		t.Fatal("Expected warm-up to fail after exhausting retries")
	}

	if srv.callCount() != 3 {
		t.Errorf("Expected 3 probe requests, got %d", srv.callCount())
	}

	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*slept) != len(expected) {
		t.Fatalf("Expected %d sleeps, got %d: %v", len(expected), len(*slept), *slept)
	}
	for i, d := range expected {
		if (*slept)[i] != d {
			t.Errorf("Sleep %d: expected %v, got %v", i, d, (*slept)[i])
		}
	}
}

func TestWarmUpUnexpectedStatusAborts(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{
		{http.StatusUnauthorized, `{"error": "invalid token"}`},
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	client, slept := newTestClient(t, ts.URL, 5, time.Second)

	if client.WarmUp(context.Background()) {
		t.Fatal("Expected warm-up to fail on unexpected status")
	}

	if srv.callCount() != 1 {
		t.Errorf("Expected 1 probe request, got %d", srv.callCount())
	}
	if len(*slept) != 0 {
		t.Errorf("Expected no backoff sleeps, got %v", *slept)
	}
}

func TestTranscribeSuccess(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{
		{http.StatusOK, `{"text": "hello world"}`},
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	client, _ := newTestClient(t, ts.URL, 5, time.Second)

	result, err := client.Transcribe(context.Background(), []byte("fake-wav"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if result.Text != "hello world" {
		t.Errorf("Expected text 'hello world', got %q", result.Text)
	}
	if len(result.Raw) == 0 {
		t.Error("Expected raw response to be retained")
	}
	if !client.Warm() {
		t.Error("Expected client to be warm after success")
	}

	srv.mu.Lock()
	auth := srv.authSeen[0]
	srv.mu.Unlock()
	if auth != "Bearer test-token" {
		t.Errorf("Expected bearer authorization, got %q", auth)
	}
}

func TestTranscribeColdModelWarmsUpThenRetriesOnce(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{
		{http.StatusServiceUnavailable, ""},       // initial transcription call
		{http.StatusOK, `{"text": ""}`},           // warm-up probe
		{http.StatusOK, `{"text": "second try"}`}, // retried transcription
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	client, slept := newTestClient(t, ts.URL, 5, time.Second)

	result, err := client.Transcribe(context.Background(), []byte("fake-wav"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if result.Text != "second try" {
		t.Errorf("Expected text from the retried call, got %q", result.Text)
	}

	// Exactly one warm-up probe between the two transcription calls
	if srv.callCount() != 3 {
		t.Errorf("Expected 3 requests (call, probe, retry), got %d", srv.callCount())
	}
	if len(*slept) != 0 {
		t.Errorf("Expected no backoff (probe succeeded immediately), got %v", *slept)
	}
}

func TestTranscribeRetryFailsOnSecond503(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{
		{http.StatusServiceUnavailable, ""},
		{http.StatusOK, `{"text": ""}`},     // warm-up probe succeeds
		{http.StatusServiceUnavailable, ""}, // retry still cold
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	client, _ := newTestClient(t, ts.URL, 5, time.Second)

	if _, err := client.Transcribe(context.Background(), []byte("fake-wav")); err == nil {
		t.Fatal("Expected error when the retried call is still 503")
	}
	// No unbounded retrying: exactly one warm-up cycle and one retry
	if srv.callCount() != 3 {
		t.Errorf("Expected 3 requests, got %d", srv.callCount())
	}
}

func TestTranscribeUnexpectedStatus(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{
		{http.StatusBadRequest, `{"error": "bad audio"}`},
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	client, _ := newTestClient(t, ts.URL, 5, time.Second)

	if _, err := client.Transcribe(context.Background(), []byte("fake-wav")); err == nil {
		t.Fatal("Expected error for HTTP 400")
	}
}

func TestTranscribeUnparsableResponse(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{
		{http.StatusOK, "not json"},
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	client, _ := newTestClient(t, ts.URL, 5, time.Second)

	if _, err := client.Transcribe(context.Background(), []byte("fake-wav")); err == nil {
		t.Fatal("Expected error for unparsable response body")
	}
}

func TestNoAuthorizationHeaderWithoutToken(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{
		{http.StatusOK, `{"text": ""}`},
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	client, err := NewClient(Config{
		Endpoint: ts.URL,
		Timeout:  5 * time.Second,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), []byte("fake-wav")); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	srv.mu.Lock()
	auth := srv.authSeen[0]
	srv.mu.Unlock()
	if auth != "" {
		t.Errorf("Expected no authorization header, got %q", auth)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{Endpoint: "http://localhost:9999"}, testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if client.config.MaxRetries != 5 {
		t.Errorf("Expected default max retries 5, got %d", client.config.MaxRetries)
	}
	if client.config.RetryDelay != 2*time.Second {
		t.Errorf("Expected default retry delay 2s, got %v", client.config.RetryDelay)
	}
	if client.config.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", client.config.Timeout)
	}

	if _, err := NewClient(Config{}, testLogger()); err == nil {
		t.Error("Expected error for empty endpoint")
	}
}
