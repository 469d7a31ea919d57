package client

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func stubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/orchestrators/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":                "inst-1",
			"statusQueryGetUri": "http://example/v1/orchestrations/inst-1",
		})
	})
	mux.HandleFunc("/v1/orchestrations/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "inst-1", "status": "Completed"})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	mux.HandleFunc("/v1/workitems", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{}, "count": 0})
	})
	mux.HandleFunc("/v1/queue/dlq", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"group": r.URL.Query().Get("group"), "count": 0})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, srv *httptest.Server, args ...string) string {
	t.Helper()
	root := NewRoot(func() string { return srv.URL })
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return buf.String()
}

func TestOrchestrationStartPrintsCheckStatus(t *testing.T) {
	srv := stubServer(t)
	out := execute(t, srv, "orchestration", "start", "fan_out_fan_in", "--input", "10")
	if !strings.Contains(out, "inst-1") || !strings.Contains(out, "statusQueryGetUri") {
		t.Fatalf("output: %s", out)
	}
}

func TestOrchestrationStartRejectsBadInput(t *testing.T) {
	srv := stubServer(t)
	root := NewRoot(func() string { return srv.URL })
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"orchestration", "start", "w", "--input", "{not json"})
	if err := root.Execute(); err == nil {
		t.Fatal("want error for malformed input")
	}
}

func TestOrchestrationStatusAndPurge(t *testing.T) {
	srv := stubServer(t)
	out := execute(t, srv, "orchestration", "status", "inst-1")
	if !strings.Contains(out, "Completed") {
		t.Fatalf("status output: %s", out)
	}
	out = execute(t, srv, "orchestration", "purge", "inst-1")
	if !strings.Contains(out, "purged: inst-1") {
		t.Fatalf("purge output: %s", out)
	}
}

func TestWorkItemsAndDLQList(t *testing.T) {
	srv := stubServer(t)
	out := execute(t, srv, "workitems", "list", "--status", "Processed")
	if !strings.Contains(out, "\"count\"") {
		t.Fatalf("workitems output: %s", out)
	}
	out = execute(t, srv, "dlq", "list", "--group", "processors")
	if !strings.Contains(out, "processors") {
		t.Fatalf("dlq output: %s", out)
	}
}
