// Package httpserver implements C8's HTTP POST receiver (spec.md §4.8,
// §6): the fixed `/imports/<model>/<uuid>/...` route family used by
// Davis VP2 edge modems and Monitor-II edge boxes, routed with
// gorilla/mux the way the teacher's management controller and REST
// server route their own surfaces.
package httpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/meteo-concept/ingestd/internal/connector"
	"github.com/meteo-concept/ingestd/internal/jobs"
	"github.com/meteo-concept/ingestd/internal/log"
	"github.com/meteo-concept/ingestd/internal/model"
	"github.com/meteo-concept/ingestd/internal/store"
)

// RecordDecoder turns one fixed-size binary record from an archive_page
// POST body into an Observation. Davis VP2 and Monitor-II each provide
// their own (different record sizes, spec.md §4.8).
type RecordDecoder interface {
	RecordSize() int
	Decode(station model.StationID, rec []byte) (model.Observation, bool)
}

// Server is the C8 HTTP connector.
type Server struct {
	addr     string
	facade   store.Facade
	debounce *jobs.Debouncer
	decoders map[string]RecordDecoder // keyed by <model> path segment

	mu          sync.Mutex
	httpServer  *http.Server
	activeSince time.Time
	lastIngest  time.Time
	nbOps       int64
	stopped     bool
}

// New builds a Server listening on addr (spec.md §6's port 5887),
// dispatching archive_page bodies to decoders keyed by the <model> path
// segment ("vp2", "monitorII").
func New(addr string, facade store.Facade, debounce *jobs.Debouncer, decoders map[string]RecordDecoder) *Server {
	return &Server{addr: addr, facade: facade, debounce: debounce, decoders: decoders}
}

func (s *Server) Name() string { return "pushreceiver:http" }

func (s *Server) Start(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/imports/{model}/{uuid}/last_archive", s.handleLastArchive).Methods(http.MethodGet)
	router.HandleFunc("/imports/{model}/{uuid}/archive_page", s.handleArchivePage).Methods(http.MethodPost)
	router.HandleFunc("/imports/{model}/{uuid}/configuration/{id}", s.handleConfiguration).Methods(http.MethodGet)
	router.HandleFunc("/imports/decode/liveobjects", s.handleLiveObjects).Methods(http.MethodPost)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { http.Error(w, "not found", http.StatusNotFound) })

	s.mu.Lock()
	s.activeSince = time.Now()
	s.httpServer = &http.Server{Addr: s.addr, Handler: router, IdleTimeout: 60 * time.Second}
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("[pushreceiver/http] connection: server exited: %v", err)
		}
	}()
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.httpServer == nil {
		return nil
	}
	s.stopped = true
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Reload(_ context.Context) error { return nil }

func (s *Server) Status() connector.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	short := connector.StatusOK
	if s.stopped {
		short = connector.StatusStopped
	} else if s.nbOps == 0 {
		short = connector.StatusIdle
	}
	return connector.Status{ActiveSince: s.activeSince, LastDownload: s.lastIngest, DownloadsSinceReload: s.nbOps, ShortStatus: short}
}

// authenticate checks the X-Authenticated-User header against the
// station's configured auth token (spec.md §6's authorization table).
func (s *Server) authenticate(r *http.Request, station model.StationID) (int, error) {
	user := r.Header.Get("X-Authenticated-User")
	if user == "" {
		return http.StatusUnauthorized, fmt.Errorf("missing X-Authenticated-User header")
	}
	reg, err := s.facade.GetStation(r.Context(), station)
	if err != nil || reg == nil {
		return http.StatusNotFound, fmt.Errorf("unknown station")
	}
	if reg.AuthToken != user {
		return http.StatusForbidden, fmt.Errorf("user does not match station's configured authorized user")
	}
	return http.StatusOK, nil
}

func (s *Server) handleLastArchive(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	station := model.StationID(vars["uuid"])
	if code, err := s.authenticate(r, station); err != nil {
		http.Error(w, err.Error(), code)
		return
	}
	last, err := s.facade.GetLastArchiveTime(r.Context(), station)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if cfg, _ := s.facade.GetLastConfiguration(r.Context(), station); cfg != nil && cfg.Pending {
		w.Header().Set("Meteodata-Config", cfg.ID)
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "%d", last.Unix())
}

func (s *Server) handleArchivePage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	station := model.StationID(vars["uuid"])
	modelName := vars["model"]
	if code, err := s.authenticate(r, station); err != nil {
		http.Error(w, err.Error(), code)
		return
	}
	decoder, ok := s.decoders[modelName]
	if !ok {
		http.Error(w, "unknown model", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	recSize := decoder.RecordSize()
	if recSize == 0 || len(body)%recSize != 0 {
		http.Error(w, "record size mismatch", http.StatusNotAcceptable)
		return
	}

	var oldest, newest time.Time
	n := len(body) / recSize
	for i := 0; i < n; i++ {
		rec := body[i*recSize : (i+1)*recSize]
		obs, ok := decoder.Decode(station, rec)
		if !ok {
			continue
		}
		if oldest.IsZero() || obs.Timestamp.Before(oldest) {
			oldest = obs.Timestamp
		}
		if obs.Timestamp.After(newest) {
			newest = obs.Timestamp
		}
	}
	if !newest.IsZero() {
		if _, err := s.facade.DeletePointsInRange(r.Context(), station, oldest, oldest, newest.Add(time.Second)); err != nil {
			log.Warnf("[pushreceiver/http] measurement: could not clear real-time rows for %s: %v", station, err)
		}
	}
	for i := 0; i < n; i++ {
		rec := body[i*recSize : (i+1)*recSize]
		obs, ok := decoder.Decode(station, rec)
		if !ok {
			continue
		}
		if _, err := s.facade.InsertPoint(r.Context(), obs); err != nil {
			log.Errorf("[pushreceiver/http] measurement: insert failed for %s: %v", station, err)
		}
	}
	if !newest.IsZero() {
		if _, err := s.facade.UpdateLastArchiveTime(r.Context(), station, newest); err != nil {
			log.Errorf("[pushreceiver/http] management: watermark update failed for %s: %v", station, err)
		}
		if s.debounce != nil {
			s.debounce.Notify(station, oldest, newest)
		}
	}

	s.mu.Lock()
	s.lastIngest = time.Now()
	s.nbOps++
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	station := model.StationID(vars["uuid"])
	id := vars["id"]
	if code, err := s.authenticate(r, station); err != nil {
		http.Error(w, err.Error(), code)
		return
	}
	cfg, err := s.facade.GetLastConfiguration(r.Context(), station)
	if err != nil || cfg == nil || cfg.ID != id {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, cfg.Payload)
}

var _ connector.Connector = (*Server)(nil)
