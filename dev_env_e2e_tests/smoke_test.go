//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"fmt"
	"net/http"
	"testing"
	"time"
)

// Smoke test against a running dev stack. Requires the API (serve) process;
// worker-side checks only run when a worker and its upstreams are up, so the
// assertions here stop at the queue boundary.
func TestDevEnv_IngressSmoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}

	baseURL := env("REELSCRIPT_API", "http://localhost:8080")
	if err := ping(baseURL + "/health"); err != nil {
		t.Skipf("service %s unreachable: %v", baseURL, err)
	}
	waitForHealthy(t, baseURL, 10*time.Second)

	sub := fmt.Sprintf("%d", time.Now().UnixNano()%1e12)

	// 1. URL-only message parks the reel and asks for an idea
	payload := fmt.Sprintf(`{"subscriber_id":%q,"reel_url":"https://www.instagram.com/reel/e2eSmoke1"}`, sub)
	resp, err := http.Post(baseURL+"/api/v1/script/generate", "application/json", bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("generate request: %v", err)
	}
	var parked struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	mustJSON(t, resp, &parked)
	if parked.Status != "ok" {
		t.Fatalf("expected ok for URL-only message, got %q", parked.Status)
	}

	// 2. Follow-up idea queues a job against the parked reel
	payload = fmt.Sprintf(`{"subscriber_id":%q,"user_idea":"an end to end smoke test idea"}`, sub)
	resp, err = http.Post(baseURL+"/api/v1/script/generate", "application/json", bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("generate request: %v", err)
	}
	var queued struct {
		Status string `json:"status"`
		JobID  string `json:"jobId"`
	}
	mustJSON(t, resp, &queued)
	if queued.Status != "queued" || queued.JobID == "" {
		t.Fatalf("expected queued job, got %+v", queued)
	}

	// 3. Unknown public id renders the not-found page
	vresp, err := http.Get(baseURL + "/s/zzZZzz")
	if err != nil {
		t.Fatalf("public view request: %v", err)
	}
	vresp.Body.Close()
	if vresp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown public id, got %d", vresp.StatusCode)
	}
}
