// Package udpserver implements C8's UDP push receiver (spec.md §4.8,
// §6): NB-IoT gateways post one datagram per uplink, authenticated with
// an IMEI + HMAC-SHA256 suffix instead of a bearer token. It runs as a
// panjf2000/gnet/v2 event-driven listener, the same engine the teacher
// uses as a TCP *client* in cmd/davis-instruments-forwarder — here it is
// the server side of the family instead, per DESIGN.md.
package udpserver

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/meteo-concept/ingestd/internal/connector"
	"github.com/meteo-concept/ingestd/internal/decode"
	"github.com/meteo-concept/ingestd/internal/jobs"
	"github.com/meteo-concept/ingestd/internal/log"
	"github.com/meteo-concept/ingestd/internal/model"
	"github.com/meteo-concept/ingestd/internal/store"
	"github.com/panjf2000/gnet/v2"
)

const (
	imeiHexLen = 15
	hmacHexLen = 64 // HMAC-SHA256 = 32 bytes = 64 hex chars
	minBodyLen = imeiHexLen + hmacHexLen
	sensorModel = "dragino_thplnbiot"
)

// Server is the C8 UDP connector.
type Server struct {
	addr     string
	facade   store.Facade
	debounce *jobs.Debouncer
	registry *decode.Registry
	ctx      context.Context

	mu           sync.Mutex
	eng          gnet.Engine
	running      bool
	activeSince  time.Time
	lastIngest   time.Time
	nbDatagrams  int64
}

// New builds a Server. addr is e.g. "udp://0.0.0.0:5888" (spec.md §6's
// fixed NB-IoT port).
func New(addr string, facade store.Facade, debounce *jobs.Debouncer) *Server {
	return &Server{addr: addr, facade: facade, debounce: debounce, registry: decode.NewRegistry()}
}

func (s *Server) Name() string { return "pushreceiver:udp" }

func (s *Server) Start(ctx context.Context) error {
	s.ctx = ctx
	h := &handler{srv: s}
	errCh := make(chan error, 1)
	go func() {
		errCh <- gnet.Run(h, s.addr, gnet.WithMulticore(true))
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("udpserver: gnet.Run exited immediately: %w", err)
	case <-time.After(200 * time.Millisecond):
	}
	s.mu.Lock()
	s.activeSince = time.Now()
	s.running = true
	s.mu.Unlock()
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	eng := s.eng
	running := s.running
	s.running = false
	s.mu.Unlock()
	if !running {
		return nil
	}
	return eng.Stop(context.Background())
}

func (s *Server) Reload(_ context.Context) error { return nil }

func (s *Server) Status() connector.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	short := connector.StatusOK
	if !s.running {
		short = connector.StatusStopped
	} else if s.nbDatagrams == 0 {
		short = connector.StatusIdle
	}
	return connector.Status{
		ActiveSince:          s.activeSince,
		LastDownload:         s.lastIngest,
		DownloadsSinceReload: s.nbDatagrams,
		ShortStatus:          short,
	}
}

// handler is the gnet.EventHandler; it only holds a back-reference to
// Server since all mutable state lives there under its own mutex.
type handler struct {
	gnet.BuiltinEventEngine
	srv *Server
}

func (h *handler) OnBoot(eng gnet.Engine) gnet.Action {
	h.srv.mu.Lock()
	h.srv.eng = eng
	h.srv.mu.Unlock()
	return gnet.None
}

// OnTraffic handles exactly one NB-IoT datagram per call (spec.md §4.8
// rules 1-4): validate length, split IMEI/body/HMAC, look up the
// station, check HMAC, process any pending downlink, decode the uplink
// and insert.
func (h *handler) OnTraffic(c gnet.Conn) gnet.Action {
	data, err := c.Next(-1)
	if err != nil {
		return gnet.Close
	}
	response := h.srv.process(h.srv.ctx, data)
	if len(response) > 0 {
		c.Write(response)
	}
	return gnet.None
}

func (s *Server) process(ctx context.Context, raw []byte) []byte {
	body := hex.EncodeToString(raw)
	if len(body) < minBodyLen {
		// "UDP datagram < 16 bytes => dropped, no stack trace, no crash"
		log.Warnf("[pushreceiver/udp] protocol: datagram too short (%d hex chars)", len(body))
		return nil
	}

	imei := body[:imeiHexLen]
	message := body[:len(body)-hmacHexLen]
	receivedHMAC := strings.ToLower(body[len(body)-hmacHexLen:])

	reg, found := s.findStationByIMEI(ctx, imei)
	if !found {
		log.Warnf("[pushreceiver/udp] management: unknown IMEI %s", imei)
		return nil
	}

	key, err := hex.DecodeString(reg.AuthToken)
	if err == nil {
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte(message))
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(receivedHMAC)) {
			msg := fmt.Sprintf("[pushreceiver/udp] protocol: HMAC mismatch for station %s", reg.Station)
			if reg.StrictHMAC {
				log.Errorf("%s: rejecting, strict_hmac is enabled", msg)
				return nil
			}
			log.Warnf("%s: processing anyway, strict_hmac is disabled", msg)
		}
	}

	response := s.deliverPendingDownlink(ctx, reg.Station)

	oldest, newest, ok := s.ingestRecords(ctx, reg.Station, message[imeiHexLen:])
	if ok {
		if _, err := s.facade.UpdateLastArchiveTime(ctx, reg.Station, newest); err != nil {
			log.Errorf("[pushreceiver/udp] management: watermark update failed for %s: %v", reg.Station, err)
		}
		if s.debounce != nil {
			s.debounce.Notify(reg.Station, oldest, newest)
		}
		s.mu.Lock()
		s.lastIngest = time.Now()
		s.nbDatagrams++
		s.mu.Unlock()
	}

	return response
}

func (s *Server) findStationByIMEI(ctx context.Context, imei string) (store.StationRegistration, bool) {
	stations, err := s.facade.GetStationsByKind(ctx, store.KindNBIoT)
	if err != nil {
		log.Errorf("[pushreceiver/udp] management: could not list NB-IoT stations: %v", err)
		return store.StationRegistration{}, false
	}
	for _, st := range stations {
		if strings.EqualFold(string(st.Name), imei) {
			return st, true
		}
	}
	return store.StationRegistration{}, false
}

// deliverPendingDownlink piggybacks a queued downlink command on the
// response to this uplink (spec.md §4.8 rule 3), then marks it delivered.
func (s *Server) deliverPendingDownlink(ctx context.Context, station model.StationID) []byte {
	cfg, err := s.facade.GetLastConfiguration(ctx, station)
	if err != nil || cfg == nil || !cfg.Pending {
		return nil
	}
	payload, err := hex.DecodeString(cfg.Payload)
	if err != nil {
		log.Errorf("[pushreceiver/udp %s] protocol: invalid downlink %s, ignored: %v", station, cfg.ID, err)
		return nil
	}
	if err := s.facade.UpdateConfigurationStatus(ctx, station, cfg.ID, false); err != nil {
		log.Errorf("[pushreceiver/udp %s] management: could not mark downlink %s delivered: %v", station, cfg.ID, err)
	}
	return payload
}

// ingestRecords decodes every fixed-size Thplnbiot record packed after
// the IMEI (spec.md §4.8 rule 4: "may contain multiple records").
func (s *Server) ingestRecords(ctx context.Context, station model.StationID, hexPayload string) (oldest, newest time.Time, ok bool) {
	const recordLen = 32
	now := time.Now().UTC()

	for i := 0; i+recordLen <= len(hexPayload); i += recordLen {
		rec := hexPayload[i : i+recordLen]

		// A fresh decoder per record: the Fresh -> Ingested(valid|invalid)
		// contract forbids reusing one instance across messages, and each
		// record here is its own message.
		dec, err := s.registry.New(sensorModel)
		if err != nil {
			log.Errorf("[pushreceiver/udp] management: %v", err)
			return oldest, newest, ok
		}
		statefulDec, _ := dec.(interface {
			IngestWithStore(ctx context.Context, station model.StationID, payload string, timestamp time.Time, store decode.CounterStore) error
		})

		var ingestErr error
		if statefulDec != nil {
			ingestErr = statefulDec.IngestWithStore(ctx, station, rec, now, s.facade)
		} else {
			ingestErr = dec.Ingest(ctx, station, rec, now)
		}
		if ingestErr != nil || !dec.ValidAfterParse() {
			log.Warnf("[pushreceiver/udp] measurement: record decode failed for %s: %v", station, ingestErr)
			continue
		}
		obs := dec.ToObservation(station)
		if _, err := s.facade.InsertPoint(ctx, obs); err != nil {
			log.Errorf("[pushreceiver/udp] measurement: insert failed for %s: %v", station, err)
			continue
		}
		if stateful, ok := dec.(decode.StatefulDecoder); ok {
			if err := stateful.CacheAfterInsert(ctx, station, s.facade); err != nil {
				log.Warnf("[pushreceiver/udp] management: cache update failed for %s: %v", station, err)
			}
		}
		if oldest.IsZero() || obs.Timestamp.Before(oldest) {
			oldest = obs.Timestamp
		}
		if obs.Timestamp.After(newest) {
			newest = obs.Timestamp
		}
		ok = true
	}
	return oldest, newest, ok
}

var _ connector.Connector = (*Server)(nil)
