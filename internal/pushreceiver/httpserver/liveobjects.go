package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/meteo-concept/ingestd/internal/decode"
	"github.com/meteo-concept/ingestd/internal/log"
	"github.com/meteo-concept/ingestd/internal/model"
)

// handleLiveObjects implements the `POST /imports/decode/liveobjects`
// surface (spec.md §6): decode the envelope, write through the shared
// C4 path, and answer with the decoded observation as JSON.
func (s *Server) handleLiveObjects(w http.ResponseWriter, r *http.Request) {
	var env decode.LiveObjectsEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "malformed envelope", http.StatusBadRequest)
		return
	}

	sensorModel, ok := decode.ResolveModel(&env)
	if !ok {
		log.Warnf("[pushreceiver/http] management: no decoder for liveobjects envelope (stream %s)", env.StreamID)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	registry := decode.NewRegistry()
	dec, err := registry.New(sensorModel)
	if err != nil {
		log.Warnf("[pushreceiver/http] management: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	station := model.StationID(mux.Vars(r)["uuid"])
	if station == "" {
		station = model.StationID(env.StreamID)
	}

	statefulDec, _ := dec.(interface {
		IngestWithStore(ctx context.Context, station model.StationID, payload string, timestamp time.Time, store decode.CounterStore) error
	})
	var ingestErr error
	if statefulDec != nil {
		ingestErr = statefulDec.IngestWithStore(r.Context(), station, env.Value.Payload, env.Timestamp, s.facade)
	} else {
		ingestErr = dec.Ingest(r.Context(), station, env.Value.Payload, env.Timestamp)
	}
	if ingestErr != nil || !dec.ValidAfterParse() {
		log.Warnf("[pushreceiver/http] measurement: liveobjects decode failed for %s: %v", station, ingestErr)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	obs := dec.ToObservation(station)
	if _, err := s.facade.InsertPoint(r.Context(), obs); err != nil {
		log.Errorf("[pushreceiver/http] measurement: insert failed for %s: %v", station, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if stateful, ok := dec.(decode.StatefulDecoder); ok {
		if err := stateful.CacheAfterInsert(r.Context(), station, s.facade); err != nil {
			log.Warnf("[pushreceiver/http] management: cache update failed for %s: %v", station, err)
		}
	}
	if s.debounce != nil {
		s.debounce.Notify(station, obs.Timestamp, obs.Timestamp)
	}

	s.mu.Lock()
	s.lastIngest = time.Now()
	s.nbOps++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dec.Describe())
}
