package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"goboot/app"
	"goboot/internal/bootstrap"
	"goboot/internal/config"
	"goboot/internal/testkit"
)

func newTestServer(t *testing.T) (*Server, *testkit.Kit) {
	t.Helper()

	kit := testkit.NewKit()
	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", GinMode: "test"},
		Boot: config.BootConfig{
			Iterations: 200,
			Workers:    1,
			Confidence: 0.95,
			Seed:       7,
		},
		Data: config.DataConfig{File: "severity.xlsx"},
	}

	engine := bootstrap.NewEngine(kit.RNG)
	service := app.NewBootstrapService(engine, kit.Ledger, kit.Reader(testkit.SeverityDataset()), cfg)
	return NewServer(cfg, service), kit
}

func doRequest(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
	}
	return body
}

// waitForStored polls a run's status until it leaves the active set and
// answers from the ledger.
func waitForStored(t *testing.T, handler http.Handler, runID string) map[string]interface{} {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		w := doRequest(handler, http.MethodGet, "/api/runs/"+runID, "")
		if w.Code == http.StatusOK {
			body := decodeBody(t, w)
			if body["status"] != "running" {
				return body
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never reached a stored state", runID)
	return nil
}

func submitRun(t *testing.T, handler http.Handler, body string) string {
	t.Helper()

	w := doRequest(handler, http.MethodPost, "/api/runs", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit returned %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	runID, _ := resp["run_id"].(string)
	if runID == "" {
		t.Fatalf("submit response has no run_id: %s", w.Body.String())
	}
	return runID
}

func TestSubmitRunLifecycle(t *testing.T) {
	server, kit := newTestServer(t)
	router := server.Router()

	runID := submitRun(t, router, `{
		"source": "severity.xlsx",
		"estimator": {"kind": "mean", "columns": ["severity_score"]},
		"iterations": 100,
		"seed": 7
	}`)

	body := waitForStored(t, router, runID)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "mean(severity_score)", body["estimator"])
	assert.EqualValues(t, 100, body["requested"])
	assert.EqualValues(t, 100, body["usable"])
	assert.EqualValues(t, 0, body["missing"])
	assert.Equal(t, false, body["partial"])
	assert.EqualValues(t, 7, body["seed"])

	summaries, ok := body["summaries"].([]interface{})
	if assert.True(t, ok, "summaries missing from response") {
		assert.Len(t, summaries, 1)
		row := summaries[0].(map[string]interface{})
		assert.Equal(t, "mean", row["name"])
		mean := row["estimate_mean"].(float64)
		assert.InDelta(t, 5.0, mean, 0.5)
	}

	assert.Equal(t, 1, kit.Ledger.RunCount())
}

func TestSubmitRunValidation(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed json",
			body:       `{"estimator": `,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "unknown estimator kind",
			body:       `{"estimator": {"kind": "loess", "columns": ["x"]}}`,
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "missing estimator columns",
			body:       `{"estimator": {"kind": "mean"}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "unknown interval method",
			body:       `{"estimator": {"kind": "mean", "columns": ["severity_score"]}, "method": "bayes"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPost, "/api/runs", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			body := decodeBody(t, w)
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

func TestGetRunNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	w := doRequest(server.Router(), http.MethodGet, "/api/runs/no-such-run", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestListRunsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	first := submitRun(t, router, `{"estimator": {"kind": "mean", "columns": ["severity_score"]}, "iterations": 60}`)
	waitForStored(t, router, first)
	second := submitRun(t, router, `{"estimator": {"kind": "sd", "columns": ["severity_score"]}, "iterations": 60}`)
	waitForStored(t, router, second)

	w := doRequest(router, http.MethodGet, "/api/runs", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 2, body["count"])

	runs := body["runs"].([]interface{})
	newest := runs[0].(map[string]interface{})
	assert.Equal(t, "sd(severity_score)", newest["estimator"])

	w = doRequest(router, http.MethodGet, "/api/runs?estimator=mean(severity_score)", "")
	body = decodeBody(t, w)
	assert.EqualValues(t, 1, body["count"])
}

func TestDeleteStoredRun(t *testing.T) {
	server, kit := newTestServer(t)
	router := server.Router()

	runID := submitRun(t, router, `{"estimator": {"kind": "mean", "columns": ["severity_score"]}, "iterations": 40}`)
	waitForStored(t, router, runID)

	w := doRequest(router, http.MethodDelete, "/api/runs/"+runID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deleted", decodeBody(t, w)["status"])
	assert.Equal(t, 0, kit.Ledger.RunCount())

	w = doRequest(router, http.MethodDelete, "/api/runs/"+runID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelInFlightRun(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	// Enough iterations that the run is still executing when the
	// cancellation lands.
	runID := submitRun(t, router, `{"estimator": {"kind": "mean", "columns": ["severity_score"]}, "iterations": 300000}`)

	// Cancel only once at least one replicate exists, so the run has
	// something to persist.
	deadline := time.Now().Add(10 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("run never reported progress")
		}
		w := doRequest(router, http.MethodGet, "/api/runs/"+runID, "")
		body := decodeBody(t, w)
		if body["status"] == "running" && body["completed"].(float64) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	w := doRequest(router, http.MethodDelete, "/api/runs/"+runID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelling", decodeBody(t, w)["status"])

	body := waitForStored(t, router, runID)
	assert.Equal(t, "partial", body["status"])
	assert.Equal(t, true, body["partial"])
	completed := int(body["completed"].(float64))
	assert.Less(t, completed, 300000)
}

func TestRunReport(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	runID := submitRun(t, router, `{"estimator": {"kind": "mean", "columns": ["severity_score"]}, "iterations": 80}`)
	waitForStored(t, router, runID)

	w := doRequest(router, http.MethodGet, fmt.Sprintf("/api/runs/%s/report?format=markdown", runID), "")
	assert.Equal(t, http.StatusOK, w.Code)
	md := w.Body.String()
	assert.Contains(t, md, "# Bootstrap Run")
	assert.Contains(t, md, "mean(severity_score)")
	assert.Contains(t, md, "| Series |")

	w = doRequest(router, http.MethodGet, fmt.Sprintf("/api/runs/%s/report", runID), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<table>")
}

func TestGetReplicates(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	runID := submitRun(t, router, `{"estimator": {"kind": "median", "columns": ["severity_score"]}, "iterations": 50}`)
	waitForStored(t, router, runID)

	w := doRequest(router, http.MethodGet, "/api/runs/"+runID+"/replicates", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	replicates := body["replicates"].([]interface{})
	assert.Len(t, replicates, 50)

	first := replicates[0].(map[string]interface{})
	assert.EqualValues(t, 1, first["resample"])
}

func TestHealthAndEstimators(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	w := doRequest(router, http.MethodGet, "/api/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])

	w = doRequest(router, http.MethodGet, "/api/estimators", "")
	assert.Equal(t, http.StatusOK, w.Code)
	catalog := decodeBody(t, w)["estimators"].([]interface{})
	assert.NotEmpty(t, catalog)

	kinds := make([]string, 0, len(catalog))
	for _, entry := range catalog {
		kinds = append(kinds, entry.(map[string]interface{})["kind"].(string))
	}
	assert.Contains(t, kinds, "mean")
	assert.Contains(t, kinds, "glm")
}

func TestProfileSourceEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	w := doRequest(router, http.MethodGet, "/api/datasets/profile?source=scores.xlsx", "")
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "scores.xlsx", body["source"])

	columns, ok := body["columns"].([]interface{})
	if !assert.True(t, ok, "columns missing from response") {
		return
	}
	assert.Len(t, columns, 1)

	col := columns[0].(map[string]interface{})
	assert.Equal(t, "severity_score", col["key"])
	assert.Equal(t, "numeric", col["kind"])
	assert.EqualValues(t, 8, col["rows"])
	assert.EqualValues(t, 0, col["missing"])

	summary, ok := col["summary"].(map[string]interface{})
	if assert.True(t, ok, "numeric column lacks a summary") {
		assert.InDelta(t, 5.0, summary["mean"].(float64), 1e-9)
		assert.InDelta(t, 4.5, summary["median"].(float64), 1e-9)
		assert.Equal(t, true, summary["normal"])
	}

	// Without a source the handler falls back to the configured file.
	w = doRequest(router, http.MethodGet, "/api/datasets/profile", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "severity.xlsx", decodeBody(t, w)["source"])
}

func TestSSEHubRegisterUnregister(t *testing.T) {
	hub := NewSSEHub()

	client := &SSEClient{RunID: "r1", Channel: make(chan RunEvent, 10)}
	hub.register <- client

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount("r1") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	hub.Broadcast(RunEvent{RunID: "r1", EventType: EventCompleted, Completed: 5, Total: 5})
	select {
	case event := <-client.Channel:
		assert.Equal(t, EventCompleted, event.EventType)
		assert.Equal(t, 5, event.Completed)
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}

	// Events for other runs never reach this client.
	hub.Broadcast(RunEvent{RunID: "r2", EventType: EventProgress})
	select {
	case event := <-client.Channel:
		t.Fatalf("received event for foreign run: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}

	hub.unregister <- client
	for hub.SubscriberCount("r1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(time.Millisecond)
	}
	if _, open := <-client.Channel; open {
		t.Error("channel still open after unregister")
	}
}

func TestSSEStreamDeliversEvents(t *testing.T) {
	server, _ := newTestServer(t)
	hub := server.hub

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-123/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		server.Router().ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount("run-123") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("SSE subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(RunEvent{
		RunID:     "run-123",
		EventType: EventProgress,
		Completed: 10,
		Total:     100,
		Timestamp: time.Now(),
	})

	// Let the event flush before disconnecting the client.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	assert.Contains(t, body, "event:progress")
	assert.Contains(t, body, `"completed":10`)
}
