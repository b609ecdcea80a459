package server

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lasttrips/internal/analysis"
	"lasttrips/internal/metrics"
	"lasttrips/internal/report"
)

// lockedBuffer lets the test read logs written by server goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestServer(t *testing.T, logs io.Writer) (*httptest.Server, *report.Board, *metrics.Collector) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	board := report.NewBoard("Last trips", analysis.Target{RouteID: "1", StopID: "110"})
	m := metrics.NewCollector(1619, 30)

	ts := httptest.NewServer(New("127.0.0.1:0", board, m.Handler(), logger).Handler())
	t.Cleanup(ts.Close)
	return ts, board, m
}

func get(t *testing.T, ts *httptest.Server, path string) (*http.Response, string) {
	t.Helper()
	client := ts.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t, io.Discard)

	resp, body := get(t, ts, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", body)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestReport_ShowsBoardRows(t *testing.T) {
	ts, board, _ := newTestServer(t, io.Discard)
	board.Add(analysis.Row{
		Date:               time.Date(2020, 7, 22, 0, 0, 0, 0, time.UTC),
		FalsePositive:      30,
		ScheduledTripID:    "T1-Sched",
		ScheduledDeparture: "23:45:00",
		Found:              true,
		Actual:             analysis.ObservedLastTrip{TripID: "T1-Actual", VehicleID: "V9", Minute: time.Date(2020, 7, 22, 23, 58, 0, 0, time.UTC)},
	})

	resp, body := get(t, ts, "/report")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "T1-Actual")
	assert.Contains(t, body, "http-equiv", "running evaluations refresh")

	board.Finish(nil)
	_, body = get(t, ts, "/report")
	assert.NotContains(t, body, "http-equiv")
}

func TestRootRedirectsToReport(t *testing.T) {
	ts, _, _ := newTestServer(t, io.Discard)

	resp, _ := get(t, ts, "/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/report", resp.Header.Get("Location"))

	resp, _ = get(t, ts, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	ts, _, m := newTestServer(t, io.Discard)
	m.DateEvaluated(false)

	resp, body := get(t, ts, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `lasttrips_dates_evaluated_total{outcome="not_found"} 1`)
}

func TestRequestLogger(t *testing.T) {
	var logs lockedBuffer
	ts, _, _ := newTestServer(t, &logs)

	get(t, ts, "/report")
	get(t, ts, "/healthz")

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "level=INFO")
	assert.Contains(t, lines[0], "path=/report")
	assert.Contains(t, lines[0], "status=200")
	assert.Contains(t, lines[1], "level=DEBUG")
	assert.Contains(t, lines[1], "path=/healthz")
}

func TestMetricsOptional(t *testing.T) {
	board := report.NewBoard("Last trips", analysis.Target{})
	ts := httptest.NewServer(New(":0", board, nil, slog.New(slog.NewTextHandler(io.Discard, nil))).Handler())
	defer ts.Close()

	resp, _ := get(t, ts, "/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
