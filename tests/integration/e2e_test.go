//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/nbapi/internal/infrastructure/config"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/logging"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/server"
	"github.com/GriffinCanCode/nbapi/tests/helpers/testutil"
)

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Registry.Dir = filepath.Join(dir, "services")
	cfg.Registry.Watch = false
	cfg.History.Path = filepath.Join(dir, "runs.db")
	cfg.Artifacts.BaseDir = dir
	cfg.RateLimit.Enabled = false
	cfg.Fetch.MaxRetries = 0
	cfg.Logging.Development = true
	return cfg
}

func startAPI(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	srv, err := server.NewServer(context.Background(), cfg, logging.NewDevelopment())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)
	return api
}

func call(t *testing.T, method, url string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// TestEndToEndWorkflow covers discovery, editing, execution and run history
// against a JavaScript notebook served over HTTP.
func TestEndToEndWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	var source atomic.Value
	source.Store(testutil.NotebookJSON("javascript",
		testutil.CodeCell{ID: "params", Source: "name = 'World' #@param {type: \"string\"}\ntimes = 1 #@param {type: \"integer\"}"},
		testutil.CodeCell{ID: "greet", Source: "('Hello, ' + name + '! ').repeat(times).trim()"},
	))
	notebooks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, source.Load().(string))
	}))
	defer notebooks.Close()

	api := startAPI(t, newConfig(t))

	t.Run("Discover and save", func(t *testing.T) {
		code, resp := call(t, "POST", api.URL+"/services/discover", map[string]string{
			"url":  notebooks.URL + "/greet.ipynb",
			"name": "demo/greet",
		})
		require.Equal(t, http.StatusOK, code, resp)
		assert.Equal(t, "demo/greet", resp["name"])
	})

	t.Run("Bind parameters to input", func(t *testing.T) {
		code, resp := call(t, "PUT", api.URL+"/services/demo/greet", map[string]interface{}{
			"url": notebooks.URL + "/greet.ipynb",
			"plan": []map[string]interface{}{
				{"cell_id": "params", "vars": map[string]interface{}{
					"name":  map[string]string{"input": "name"},
					"times": map[string]string{"constant": "2"},
				}},
				{"cell_id": "greet", "vars": map[string]interface{}{}},
			},
		})
		require.Equal(t, http.StatusOK, code, resp)
	})

	var runID string
	t.Run("Execute", func(t *testing.T) {
		code, resp := call(t, "POST", api.URL+"/execute/demo/greet", map[string]interface{}{
			"input": map[string]string{"name": "'Ada'"},
		})
		require.Equal(t, http.StatusOK, code, resp)

		report, err := json.Marshal(resp["report"])
		require.NoError(t, err)
		assert.Contains(t, string(report), "Hello, Ada! Hello, Ada!")
		runID, _ = resp["run_id"].(string)
		assert.NotEmpty(t, runID)
	})

	t.Run("Missing input", func(t *testing.T) {
		code, resp := call(t, "POST", api.URL+"/execute/demo/greet", map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "missing_input", resp["kind"])
	})

	t.Run("Notebook drift", func(t *testing.T) {
		source.Store(testutil.NotebookJSON("javascript",
			testutil.CodeCell{ID: "parms", Source: "name = 'World' #@param"},
			testutil.CodeCell{ID: "greet", Source: "'Hello, ' + name"},
		))
		code, resp := call(t, "POST", api.URL+"/execute/demo/greet", map[string]interface{}{
			"input": map[string]string{"name": "'Ada'"},
		})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "params", resp["cell_id"])
		assert.Equal(t, []interface{}{"parms"}, resp["suggestions"])
	})

	t.Run("Run history", func(t *testing.T) {
		code, resp := call(t, "GET", api.URL+"/runs?service=demo/greet", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, float64(3), resp["count"])

		code, resp = call(t, "GET", api.URL+"/runs/"+runID, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "succeeded", resp["status"])
	})
}

// TestServiceResilience checks that a failing notebook host opens the fetch
// breaker and that the transition is exported as a metric.
func TestServiceResilience(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping resilience test in short mode")
	}

	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer upstream.Close()

	api := startAPI(t, newConfig(t))

	for i := 0; i < 8; i++ {
		code, resp := call(t, "POST", api.URL+"/services/discover", map[string]string{"url": upstream.URL + "/nb.ipynb"})
		assert.Equal(t, http.StatusBadGateway, code)
		assert.Equal(t, "fetch", resp["kind"])
	}
	assert.Equal(t, int32(5), hits.Load(), "open breaker must stop calling upstream")

	resp, err := http.Get(api.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `nbapi_breaker_transitions_total{breaker="document-fetch",to="open"} 1`))
}

// TestConcurrentRequests checks that parallel health probes all succeed.
func TestConcurrentRequests(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping concurrency test in short mode")
	}

	api := startAPI(t, newConfig(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			req, _ := http.NewRequestWithContext(ctx, "GET", api.URL+"/health", nil)
			resp, err := http.DefaultClient.Do(req)
			if err == nil {
				resp.Body.Close()
			}
			errs <- err
		}()
	}
	for i := 0; i < 20; i++ {
		assert.NoError(t, <-errs)
	}
}
