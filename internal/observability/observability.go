// Package observability implements SPEC_FULL.md §1.4: a small
// gorilla/mux-routed HTTP API exposing per-connector status and a live
// log tail, adapted from the teacher's internal/controllers/management
// package — same bearer-token auth and token-generated-and-logged-once
// pattern, trimmed to the two read-only endpoints this spec keeps.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/meteo-concept/ingestd/internal/connector"
	"github.com/meteo-concept/ingestd/internal/log"
	"github.com/meteo-concept/ingestd/pkg/config"
)

// Server is the observability HTTP API.
type Server struct {
	addr      string
	authToken string
	group     *connector.Group
	http      *http.Server
}

// New builds a Server listening on cfg's listen-addr/port. If
// cfg.AuthToken is empty, a fresh token is generated and logged once, the
// way the teacher's management controller does on first boot.
func New(cfg config.ManagementAPIData, group *connector.Group) *Server {
	token := cfg.AuthToken
	if token == "" {
		token = uuid.New().String()
		log.Infof("management API: no auth_token configured, generated one for this run: %s", token)
	}
	listenAddr := cfg.ListenAddr
	if listenAddr == "" {
		listenAddr = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 8081
	}
	return &Server{addr: fmt.Sprintf("%s:%d", listenAddr, port), authToken: token, group: group}
}

func (s *Server) Start(ctx context.Context) error {
	router := mux.NewRouter()
	router.Use(s.authMiddleware)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/logs/stream", s.handleLogsStream).Methods(http.MethodGet)

	s.http = &http.Server{Addr: s.addr, Handler: router}
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("observability: server exited: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}()
	return nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer "+s.authToken {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "authentication required", http.StatusUnauthorized)
	})
}

// statusEntry mirrors spec.md §4.7/§7's structured connector status.
type statusEntry struct {
	Name                 string    `json:"name"`
	ActiveSince          time.Time `json:"activeSince"`
	LastReloaded         time.Time `json:"lastReloaded"`
	LastDownload         time.Time `json:"lastDownload"`
	DownloadsSinceReload int64     `json:"nbOperations"`
	ShortStatus          string    `json:"shortStatus"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.group.Status()
	entry := statusEntry{
		Name:                 s.group.Name(),
		ActiveSince:          st.ActiveSince,
		LastReloaded:         st.LastReload,
		LastDownload:         st.LastDownload,
		DownloadsSinceReload: st.DownloadsSinceReload,
		ShortStatus:          string(st.ShortStatus),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// handleLogsStream tails internal/log's circular buffer over SSE,
// reusing its Subscribe channel instead of re-parsing stdout.
func (s *Server) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	buf := log.GetLogBuffer()
	ch := buf.Subscribe()
	defer buf.Unsubscribe(ch)

	for _, entry := range buf.GetLogs(false) {
		writeSSE(w, entry)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, entry)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, entry log.LogEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func (s *Server) Stop() error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
