package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/ambient-go/internal/events"
	"github.com/tphakala/ambient-go/internal/inference"
	"github.com/tphakala/ambient-go/internal/logger"
	"github.com/tphakala/ambient-go/internal/observability"
)

func newTestServer(t *testing.T, n int) (*Server, *events.History) {
	t.Helper()
	h := events.NewHistory(3)
	for i := range n {
		h.Add(events.NewEvent(time.Unix(int64(1000+i), 0).UTC(), []inference.Prediction{
			{Index: i, Label: "label" + strconv.Itoa(i), Score: 0.5},
		}, "label"+strconv.Itoa(i)+": 0.50"))
	}
	m, err := observability.NewMetrics()
	require.NoError(t, err)
	return New(":0", h, WithMetricsHandler(m.Handler()), WithDevice("test"), WithLogger(logger.Discard())), h
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type eventsResponse struct {
	Events   []events.Event `json:"events"`
	Count    int            `json:"count"`
	Capacity int            `json:"capacity"`
	Total    uint64         `json:"total"`
}

func TestListEvents(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, 5)

	rec := get(t, s, "/api/v1/events")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, 3, resp.Capacity)
	assert.Equal(t, uint64(5), resp.Total)
	require.Len(t, resp.Events, 3)
	assert.Equal(t, "label2: 0.50", resp.Events[0].Text)
	assert.Equal(t, "label4: 0.50", resp.Events[2].Text)
	assert.Equal(t, "label4", resp.Events[2].Predictions[0].Label)
}

func TestListEventsLimit(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, 3)

	tests := []struct {
		query  string
		status int
		count  int
	}{
		{"?limit=1", http.StatusOK, 1},
		{"?limit=0", http.StatusOK, 0},
		{"?limit=10", http.StatusOK, 3},
		{"?limit=-1", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := get(t, s, "/api/v1/events"+tt.query)
			require.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusOK {
				return
			}
			var resp eventsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.count, resp.Count)
		})
	}
}

func TestEmptyHistory(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, 0)

	rec := get(t, s, "/api/v1/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"events":[]`)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/events/latest").Code)
}

func TestLatestEvent(t *testing.T) {
	t.Parallel()

	s, h := newTestServer(t, 2)
	want, ok := h.Latest()
	require.True(t, ok)

	rec := get(t, s, "/api/v1/events/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var got events.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, want.ID, got.ID)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, 1)

	rec := get(t, s, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "test", resp["device"])
	assert.InDelta(t, 1.0, resp["events_total"], 0)
	assert.Contains(t, resp, "last_event")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, 0)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s := New(addr, events.NewHistory(1), WithLogger(logger.Discard()))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/v1/health") //nolint:noctx // test helper
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
