package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rzbill/orbiter/internal/history"
	"github.com/rzbill/orbiter/internal/orchestration"
	"github.com/rzbill/orbiter/internal/runtime"
	"github.com/rzbill/orbiter/internal/table"
)

type Server struct {
	rt  *runtime.Runtime
	srv *http.Server
	lis net.Listener
}

func New(rt *runtime.Runtime) *Server {
	mux := http.NewServeMux()
	s := &Server{rt: rt, srv: &http.Server{Handler: cors(mux)}}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/orchestrators/", s.handleStartOrchestration)
	mux.HandleFunc("/v1/orchestrations/", s.handleOrchestration)
	mux.HandleFunc("/v1/workitems", s.handleWorkItems)
	mux.HandleFunc("/v1/queue/dlq", s.handleDLQ)
	return s
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// checkStatusPayload points the caller at the instance's management
// endpoints, returned with 202 from a start request.
type checkStatusPayload struct {
	ID                    string `json:"id"`
	StatusQueryGetURI     string `json:"statusQueryGetUri"`
	PurgeHistoryDeleteURI string `json:"purgeHistoryDeleteUri"`
}

func (s *Server) handleStartOrchestration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	workflow := strings.TrimPrefix(r.URL.Path, "/orchestrators/")
	if workflow == "" || strings.Contains(workflow, "/") {
		writeError(w, http.StatusBadRequest, "missing workflow name")
		return
	}
	if !s.rt.Engine().HasWorkflow(workflow) {
		writeError(w, http.StatusNotFound, "unknown workflow: "+workflow)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	var input json.RawMessage
	if len(body) > 0 {
		if !json.Valid(body) {
			writeError(w, http.StatusBadRequest, "input must be JSON")
			return
		}
		input = json.RawMessage(body)
	}
	id, err := s.rt.Engine().Start(r.Context(), workflow, input)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	base := baseURL(r)
	writeJSON(w, http.StatusAccepted, checkStatusPayload{
		ID:                    id,
		StatusQueryGetURI:     base + "/v1/orchestrations/" + id,
		PurgeHistoryDeleteURI: base + "/v1/orchestrations/" + id,
	})
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *Server) handleOrchestration(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/orchestrations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "missing instance id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		st, err := s.rt.Engine().Status(r.Context(), id)
		if err != nil {
			if errors.Is(err, history.ErrInstanceNotFound) {
				writeError(w, http.StatusNotFound, "unknown instance: "+id)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, st)
	case http.MethodDelete:
		meta, err := s.rt.History().GetInstance(r.Context(), id)
		if err != nil {
			if errors.Is(err, history.ErrInstanceNotFound) {
				writeError(w, http.StatusNotFound, "unknown instance: "+id)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if meta.Status == orchestration.StatusRunning {
			writeError(w, http.StatusConflict, "instance is still running")
			return
		}
		if err := s.rt.History().Purge(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleWorkItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := table.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = table.StatusNew
	}
	if status != table.StatusNew && status != table.StatusProcessed {
		writeError(w, http.StatusBadRequest, "status must be New or Processed")
		return
	}
	items, err := s.rt.Store().QueryByStatus(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []*table.WorkItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

type dlqEntry struct {
	Seq     uint64 `json:"seq"`
	Reason  string `json:"reason"`
	Payload string `json:"payload"`
}

func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	group := r.URL.Query().Get("group")
	if group == "" {
		group = s.rt.Config().Pipeline.ConsumerGroup
	}
	dead, err := s.rt.Queue().ReadDLQ(r.Context(), group, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]dlqEntry, 0, len(dead))
	for _, d := range dead {
		out = append(out, dlqEntry{Seq: d.Seq, Reason: d.Reason, Payload: string(d.Payload)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"group": group, "entries": out, "count": len(out)})
}
