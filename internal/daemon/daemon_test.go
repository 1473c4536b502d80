package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"curator/internal/daemon"
	"curator/internal/logging"
	"curator/internal/testsupport"
)

func startDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	d := daemon.New(cfg, logging.NewNop())
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	d := startDaemon(t)
	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", d.APIAddr()))
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := daemon.New(cfg, logging.NewNop())
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second := daemon.New(cfg, logging.NewNop())
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to fail the lock")
	}
}

func TestTagAndSelectOverHTTP(t *testing.T) {
	d := startDaemon(t)
	base := fmt.Sprintf("http://%s/api/v1", d.APIAddr())

	// Register a sample through the facade; the HTTP surface has no
	// registration endpoint, samples arrive via library sync.
	svc := d.Service()
	ctx := context.Background()
	if _, err := svc.SyncLibrary(ctx); err != nil {
		t.Fatalf("SyncLibrary: %v", err)
	}

	// Tagging a missing sample maps to 404.
	resp := postJSON(t, base+"/tags", map[string]any{
		"writer": "alice", "sample_id": "imgs/none.jpg", "add_tags": []string{"x"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	// Missing writer maps to 400.
	resp = postJSON(t, base+"/tags", map[string]any{
		"sample_id": "imgs/none.jpg", "add_tags": []string{"x"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	// Exporting an empty selection maps to 400.
	resp = postJSON(t, base+"/exports", map[string]any{"session_id": "s1", "format": "annojson"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var errBody struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody.Kind != "empty_selection" {
		t.Fatalf("expected empty_selection kind, got %q", errBody.Kind)
	}
}

func TestFormatsAndMetricsEndpoints(t *testing.T) {
	d := startDaemon(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/formats", d.APIAddr()))
	if err != nil {
		t.Fatalf("GET /formats: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Formats []string `json:"formats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode formats: %v", err)
	}
	if len(body.Formats) != 2 {
		t.Fatalf("expected 2 formats, got %v", body.Formats)
	}

	metricsResp, err := http.Get(fmt.Sprintf("http://%s/metrics", d.APIAddr()))
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	if metricsResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", metricsResp.StatusCode)
	}
}

func TestStatusReportsCounts(t *testing.T) {
	d := startDaemon(t)
	status := d.Status(context.Background())
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status: %#v", status)
	}
	if status.LedgerDBPath == "" || status.JobsDBPath == "" {
		t.Fatalf("expected db paths in status: %#v", status)
	}
}
