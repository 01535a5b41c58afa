package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.ObserveTurn("code_generation", "ok")
	m.ObserveTurn("code_generation", "ok")
	m.ObserveTurn("suggestion", "error")
	m.ObserveAttempt("execution_error")
	m.ObserveModelCall("generate", 150*time.Millisecond, nil)
	m.ObserveModelCall("generate", time.Second, errors.New("timeout"))
	m.ObserveSession("created")
	m.ObserveCommitConflict()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues("code_generation", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("suggestion", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("execution_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelErrors.WithLabelValues("generate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commitConflicts))
	assert.Equal(t, 1, testutil.CollectAndCount(m.modelDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveExecution(20*time.Millisecond, "ok")

	app := fiber.New()
	app.Get("/metrics", m.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "data_explorer_sandbox_execution_duration_seconds_count")
	assert.Contains(t, string(body), "go_goroutines")
}
