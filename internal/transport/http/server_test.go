package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"gridbt/internal/combo"
	"gridbt/internal/eval"
	"gridbt/internal/market"
	"gridbt/internal/runner"
	"gridbt/internal/signal"
	"gridbt/internal/store/runstore"
)

func newTestServer(t *testing.T) (*Server, *market.Store) {
	t.Helper()
	root := t.TempDir()

	candles, err := market.NewStore(filepath.Join(root, "data"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = candles.Close() })

	results, err := runstore.New(filepath.Join(root, "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = results.Close() })

	svc, err := runner.NewService(runner.ServiceConfig{
		Candles:   candles,
		Results:   results,
		ReportDir: filepath.Join(root, "reports"),
	})
	require.NoError(t, err)

	srv, err := NewServer(Config{Runner: svc, Results: results})
	require.NoError(t, err)
	return srv, candles
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func seedStore(t *testing.T, store *market.Store, symbol string, n int) {
	t.Helper()
	step := time.Hour.Milliseconds()
	candles := make([]market.Candle, n)
	price := 100.0
	for i := range candles {
		if i%7 == 3 {
			price *= 0.97
		} else {
			price *= 1.01
		}
		ts := int64(1700000000000) + int64(i)*step
		candles[i] = market.Candle{
			OpenTime:  ts,
			CloseTime: ts + step - 1,
			Open:      price * 0.999,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    1000,
		}
	}
	_, err := store.InsertCandles(context.Background(), symbol, "1h", candles)
	require.NoError(t, err)
}

func runParams() runner.RunParams {
	return runner.RunParams{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Grid: combo.Grid{
			Kinds:      []signal.Kind{signal.KindVWAP},
			ComboSizes: []int{1},
			VWAP:       combo.VWAPGrid{Enabled: true},
		},
		Costs:         eval.Costs{StartCapital: 100000, Leverage: 1},
		InsampleRatio: 0.7,
		Workers:       2,
	}
}

func waitJobDone(t *testing.T, srv *Server, jobID string) gjson.Result {
	t.Helper()
	var job gjson.Result
	require.Eventually(t, func() bool {
		rec := doJSON(t, srv, http.MethodGet, "/api/jobs/"+jobID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		job = gjson.Get(rec.Body.String(), "job")
		status := job.Get("status").String()
		return status == runner.JobStatusDone || status == runner.JobStatusFailed
	}, 30*time.Second, 20*time.Millisecond)
	return job
}

func TestIndex(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gridbt", gjson.Get(rec.Body.String(), "service").String())
	assert.Contains(t, gjson.Get(rec.Body.String(), "timeframes").Raw, "1h")
}

func TestImportAndQueryCandles(t *testing.T) {
	srv, _ := newTestServer(t)

	var sb strings.Builder
	sb.WriteString("timestamp,open,high,low,close,volume\n")
	step := time.Hour.Milliseconds()
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&sb, "%d,100,101,99,100.5,1000\n", int64(1700000000000)+int64(i)*step)
	}
	path := filepath.Join(t.TempDir(), "eth.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	rec := doJSON(t, srv, http.MethodPost, "/api/data/import", map[string]any{
		"symbol": "ethusdt", "timeframe": "1h", "path": path,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 8, gjson.Get(rec.Body.String(), "inserted").Int())

	rec = doJSON(t, srv, http.MethodGet, "/api/data?symbol=ETHUSDT&timeframe=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 8, gjson.Get(rec.Body.String(), "manifest.rows").Int())

	rec = doJSON(t, srv, http.MethodGet, "/api/candles/all?symbol=ETHUSDT&timeframe=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 8, gjson.Get(rec.Body.String(), "candles.#").Int())

	rec = doJSON(t, srv, http.MethodGet, "/api/candles?symbol=ETHUSDT&timeframe=1h&limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, gjson.Get(rec.Body.String(), "candles.#").Int())

	rec = doJSON(t, srv, http.MethodGet, "/api/candles?symbol=ETHUSDT", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunLifecycle(t *testing.T) {
	srv, candles := newTestServer(t)
	seedStore(t, candles, "BTCUSDT", 240)

	rec := doJSON(t, srv, http.MethodPost, "/api/runs", runParams())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := gjson.Get(rec.Body.String(), "job.id").String()
	require.NotEmpty(t, jobID)

	job := waitJobDone(t, srv, jobID)
	require.Equal(t, runner.JobStatusDone, job.Get("status").String(), job.Get("message").String())
	runID := job.Get("run_id").String()
	require.NotEmpty(t, runID)

	rec = doJSON(t, srv, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, runID, gjson.Get(rec.Body.String(), "runs.0.ID").String())

	rec = doJSON(t, srv, http.MethodGet, "/api/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BTCUSDT", gjson.Get(rec.Body.String(), "run.Symbol").String())

	rec = doJSON(t, srv, http.MethodGet, "/api/runs/"+runID+"/rows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, gjson.Get(rec.Body.String(), "rows.#").Int())

	rec = doJSON(t, srv, http.MethodGet, "/api/runs/"+runID+"/rows?metrics=return,sharpe", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := gjson.Get(rec.Body.String(), "rows.0")
	assert.True(t, first.Get("metrics.return").Exists())
	assert.True(t, first.Get("metrics.sharpe").Exists())

	rec = doJSON(t, srv, http.MethodGet, "/api/runs/"+runID+"/rows/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, gjson.Get(rec.Body.String(), "row.Label").String(), "VWAP")

	rec = doJSON(t, srv, http.MethodGet, "/api/runs/"+runID+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echarts")
}

func TestNotFoundResponses(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/runs/nope/rows/3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/runs/nope/report", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunStartValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	params := runParams()
	params.Timeframe = "2h"
	rec := doJSON(t, srv, http.MethodPost, "/api/runs", params)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/runs", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
