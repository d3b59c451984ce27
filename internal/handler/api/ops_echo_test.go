package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CreditPulse/internal/domain/models"
	xhttp "CreditPulse/pkg/http"
	xlogger "CreditPulse/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedReport struct{ r *models.BatchReport }

func (f fixedReport) LastReport() *models.BatchReport { return f.r }

func sampleReport() *models.BatchReport {
	start := time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return &models.BatchReport{
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Rows:       10,
		Converged:  8,
		Signals:    1,
		Failures: []models.RowFailure{
			{Ticker: "ACME", Date: day, Kind: models.FailureInvalidInput, Message: "equity_value must be greater than 0"},
			{Ticker: "BETA", Date: day, Kind: models.FailureTimeout, Message: "bundle timeout"},
			{Ticker: "ZETA", Date: day, Kind: models.FailureInvalidInput, Message: "duplicate row"},
		},
	}
}

func newOpsServer(h *OpsEchoHandler) *xhttp.Server {
	return xhttp.NewServer(xlogger.Nop(), []xhttp.Handler{h}, xhttp.WithRegistry(prometheus.NewRegistry()))
}

func get(t *testing.T, s *xhttp.Server, path string) (int, xhttp.APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body xhttp.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthReportsDependencies(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	s := newOpsServer(NewOpsEchoHandler(nil, nil, map[string]Pinger{"clickhouse": ok}))
	code, body := get(t, s, "/api/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Data.(map[string]interface{})["status"])

	s = newOpsServer(NewOpsEchoHandler(nil, nil, map[string]Pinger{"clickhouse": ok, "redis": down}))
	code, body = get(t, s, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	data := body.Data.(map[string]interface{})
	assert.Equal(t, "degraded", data["status"])
	checks := data["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["clickhouse"])
	assert.Equal(t, "connection refused", checks["redis"])
}

func TestLatestRunBeforeAnyBatch(t *testing.T) {
	s := newOpsServer(NewOpsEchoHandler(nil, fixedReport{}, nil))
	code, _ := get(t, s, "/api/runs/latest")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLatestRunSummarizesReport(t *testing.T) {
	s := newOpsServer(NewOpsEchoHandler(nil, fixedReport{sampleReport()}, nil))
	code, body := get(t, s, "/api/runs/latest")
	require.Equal(t, http.StatusOK, code)

	data := body.Data.(map[string]interface{})
	assert.EqualValues(t, 1500, data["duration_ms"])
	assert.EqualValues(t, 10, data["rows"])
	failures := data["failures"].(map[string]interface{})
	assert.EqualValues(t, 2, failures["invalid_input"])
	assert.EqualValues(t, 1, failures["timeout"])
}

func TestLatestFailuresFiltersAndLimits(t *testing.T) {
	s := newOpsServer(NewOpsEchoHandler(nil, fixedReport{sampleReport()}, nil))

	code, body := get(t, s, "/api/runs/latest/failures?kind=invalid_input&limit=1")
	require.Equal(t, http.StatusOK, code)
	data := body.Data.(map[string]interface{})
	assert.EqualValues(t, 2, data["total"])
	rows := data["rows"].([]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, "ACME", rows[0].(map[string]interface{})["ticker"])

	code, body = get(t, s, "/api/runs/latest/failures?ticker=BETA")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body.Data.(map[string]interface{})["total"])

	code, _ = get(t, s, "/api/runs/latest/failures?kind=exploded")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = get(t, s, "/api/runs/latest/failures?limit=5000")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestScenariosListsPresets(t *testing.T) {
	s := newOpsServer(NewOpsEchoHandler(nil, nil, nil))
	code, body := get(t, s, "/api/scenarios")
	require.Equal(t, http.StatusOK, code)

	data := body.Data.(map[string]interface{})
	assert.EqualValues(t, 6, data["total"])
	first := data["rows"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "COVID_2020", first["name"])
}
