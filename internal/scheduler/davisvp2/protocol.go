package davisvp2

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/meteo-concept/ingestd/internal/log"
	"github.com/meteo-concept/ingestd/internal/model"
	"github.com/meteo-concept/ingestd/pkg/crc16"
)

// runOnce drives the state machine through exactly one wakeup ->
// (archive download) -> (settime, if due) -> idle pass, per spec.md
// §4.7's diagram. Each state transition is a plain Go function call
// rather than an explicit dispatch table — the sequence *is* the state
// machine, matching how straight-line the teacher's own protocol code
// reads; the named State constants exist so Status()/logs can report
// which step failed.
func (s *Station) runOnce(ctx context.Context) error {
	s.setState(Starting)

	rwc, err := s.dial()
	if err != nil {
		return fmt.Errorf("connection: dial failed: %w", err)
	}
	s.mu.Lock()
	s.rwc = rwc
	s.reader = bufio.NewReader(rwc)
	s.transmissionErrs = 0
	s.timeouts = 0
	s.oldestArchive = time.Time{}
	s.newestArchive = time.Time{}
	s.mu.Unlock()
	defer rwc.Close()

	s.setState(SendingWakeup)
	if err := s.wakeup(); err != nil {
		return fmt.Errorf("connection: wakeup failed: %w", err)
	}
	s.setState(WaitingEchoStation)

	if err := s.downloadArchive(ctx); err != nil {
		return fmt.Errorf("protocol: archive download failed: %w", err)
	}

	s.mu.Lock()
	due := s.setTimeRequested
	s.mu.Unlock()
	if due {
		s.setState(SendingWakeupSettime)
		if err := s.settime(); err != nil {
			log.Errorf("[davisvp2 %s] recovery: settime failed, will retry on the next cycle: %v", s.station.Station, err)
		} else {
			s.mu.Lock()
			s.setTimeRequested = false
			s.mu.Unlock()
		}
	}

	s.setState(WaitingNextMeasureTick)
	s.mu.Lock()
	s.lastDownload = time.Now()
	s.downloads++
	s.mu.Unlock()
	return nil
}

func (s *Station) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// wakeup sends a single \n and waits up to wakeupTimeout for any
// non-empty reply line, the short timeout spec.md §4.7 rule 3 calls out
// for the initial step; it tries up to maxRetries times.
func (s *Station) wakeup() error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		if _, err := s.rwc.Write([]byte("\n")); err != nil {
			return err
		}
		line, err := s.readWithTimeout(wakeupTimeout)
		if err == nil && len(line) > 0 {
			return nil
		}
		s.mu.Lock()
		s.timeouts++
		s.mu.Unlock()
	}
	return fmt.Errorf("wakeup: exceeded %d timeouts", maxRetries)
}

// sendCommand writes cmd terminated by \n and waits for a single ACK
// byte, applying spec.md §4.7 rule 2/3's retry policy: on wrong ACK or
// timeout, retry up to maxRetries times (pausing drainWait, 10s, after a
// wrong ACK byte, without reading the socket) before giving up.
func (s *Station) sendCommand(cmd string) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		if _, err := s.rwc.Write([]byte(cmd + "\n")); err != nil {
			return err
		}
		b, err := s.readByteWithTimeout(stepTimeout)
		if err != nil {
			s.mu.Lock()
			s.timeouts++
			n := s.timeouts
			s.mu.Unlock()
			if n >= maxRetries {
				return fmt.Errorf("command %q: exceeded %d timeouts", cmd, maxRetries)
			}
			continue
		}
		if b == ack {
			return nil
		}
		s.mu.Lock()
		s.transmissionErrs++
		n := s.transmissionErrs
		s.mu.Unlock()
		if n >= maxRetries {
			return fmt.Errorf("command %q: exceeded %d transmission errors", cmd, maxRetries)
		}
		time.Sleep(drainWait)
	}
	return fmt.Errorf("command %q: exceeded retries", cmd)
}

// downloadArchive implements the DMPAFT sequence: request archive params
// since the last archive time, read the page count, then loop reading
// 5-record/52-byte pages with a trailing CRC-16, acking each.
func (s *Station) downloadArchive(ctx context.Context) error {
	s.setState(SendingReqArchive)
	if err := s.sendCommand("DMPAFT"); err != nil {
		return err
	}
	s.setState(WaitingAckArchive)

	s.setState(SendingArchiveParams)
	if err := s.sendCommand("PARAMS"); err != nil {
		return err
	}
	s.setState(WaitingAckArchiveParams)

	s.setState(WaitingArchiveNbPages)
	nbPages, err := s.readByteWithTimeout(stepTimeout)
	if err != nil {
		return fmt.Errorf("reading page count: %w", err)
	}

	s.setState(SendingAckArchiveDownload)
	if _, err := s.rwc.Write([]byte{ack}); err != nil {
		return err
	}

	for page := 0; page < int(nbPages); page++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.setState(WaitingArchivePage)
		buf := make([]byte, pageSize)
		if _, err := readFull(s.reader, buf, stepTimeout); err != nil {
			s.mu.Lock()
			s.timeouts++
			n := s.timeouts
			s.mu.Unlock()
			if n >= maxRetries {
				return fmt.Errorf("archive page %d: %w", page, err)
			}
			page--
			continue
		}
		if !crc16.Valid(buf[1:]) {
			s.mu.Lock()
			s.transmissionErrs++
			n := s.transmissionErrs
			s.mu.Unlock()
			if n >= maxRetries {
				return fmt.Errorf("archive page %d: bad CRC", page)
			}
			page--
			continue
		}

		firstRecord := int(buf[0]) // "page 0 index": which record in this page to start keeping
		for i := firstRecord; i < recordsPerPage; i++ {
			rec := buf[1+i*recordSize : 1+(i+1)*recordSize]
			obs, ok := decodeArchiveRecord(s.station.Station, rec)
			if !ok {
				continue
			}
			if s.oldestArchive.IsZero() || obs.Timestamp.Before(s.oldestArchive) {
				s.oldestArchive = obs.Timestamp
			}
			if obs.Timestamp.After(s.newestArchive) {
				s.newestArchive = obs.Timestamp
			}
			if s.facade != nil {
				if _, err := s.facade.InsertPoint(ctx, obs); err != nil {
					log.Errorf("[davisvp2 %s] measurement: insert failed: %v", s.station.Station, err)
				}
			}
		}

		s.setState(SendingArchivePageAnswer)
		if _, err := s.rwc.Write([]byte{ack}); err != nil {
			return err
		}
	}

	if !s.newestArchive.IsZero() && s.facade != nil {
		if _, err := s.facade.UpdateLastArchiveTime(ctx, s.station.Station, s.newestArchive); err != nil {
			log.Errorf("[davisvp2 %s] management: could not advance watermark: %v", s.station.Station, err)
		}
	}

	// "at the end, if floor_to_day(oldest) < floor_to_day(now), notify C5"
	if !s.oldestArchive.IsZero() && s.debounce != nil {
		if floorDay(s.oldestArchive).Before(floorDay(time.Now())) {
			s.debounce.Notify(s.station.Station, s.oldestArchive, s.newestArchive)
		}
	}
	return nil
}

// ArchiveRecordDecoder adapts this package's archive-record layout to
// httpserver.RecordDecoder, for VP2 edge modems that push archive pages
// over HTTP instead of holding a direct serial/TCP connection open
// (spec.md §4.8's "vp2" model segment).
type ArchiveRecordDecoder struct{}

func (ArchiveRecordDecoder) RecordSize() int { return recordSize }

func (ArchiveRecordDecoder) Decode(station model.StationID, rec []byte) (model.Observation, bool) {
	return decodeArchiveRecord(station, rec)
}

func floorDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// settime pushes the host's current time to the console via the SETTIME
// command, the branch spec.md §4.7 rule 4 requires after an hourly timer
// fires and the current archive pass completes.
func (s *Station) settime() error {
	s.setState(SendingWakeupSettime)
	if err := s.wakeup(); err != nil {
		return err
	}
	s.setState(WaitingEchoSettime)

	s.setState(SendingSettime)
	if err := s.sendCommand("SETTIME"); err != nil {
		return err
	}
	s.setState(WaitingAckSettime)

	now := time.Now().UTC()
	payload := []byte{
		byte(now.Second()), byte(now.Minute()), byte(now.Hour()),
		byte(now.Day()), byte(now.Month()), byte(now.Year() - 1900),
	}
	crc := crc16.Checksum(payload)
	payload = append(payload, byte(crc>>8), byte(crc))
	if _, err := s.rwc.Write(payload); err != nil {
		return err
	}
	b, err := s.readByteWithTimeout(stepTimeout)
	if err != nil || b != ack {
		return fmt.Errorf("settime: device did not ack")
	}
	return nil
}

// decodeArchiveRecord is the fixed-offset Davis archive record layout: a
// subset of fields (enough for the observation core this spec needs),
// ported from the convVal100-style scale/offset conventions the teacher's
// LOOP-packet decoder uses, applied to the archive record's byte offsets
// instead of the LOOP packet's.
func decodeArchiveRecord(station model.StationID, rec []byte) (model.Observation, bool) {
	if len(rec) != recordSize {
		return model.Observation{}, false
	}
	dateStamp := int(rec[0]) | int(rec[1])<<8
	timeStamp := int(rec[2]) | int(rec[3])<<8
	if dateStamp == 0xFFFF || dateStamp == 0 {
		return model.Observation{}, false
	}
	year := 1900 + (dateStamp >> 9)
	month := (dateStamp >> 5) & 0x0F
	day := dateStamp & 0x1F
	hour := timeStamp / 100
	minute := timeStamp % 100
	ts := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)

	obs := model.Observation{Station: station, Timestamp: ts, SensorModel: "davis-vp2-archive"}

	outsideTemp := int16(uint16(rec[4]) | uint16(rec[5])<<8)
	if outsideTemp != 0x7FFF {
		obs.Temperature = model.Some((float64(outsideTemp)/10 - 32) * 5 / 9)
	}
	outsideHum := rec[6]
	if outsideHum != 0xFF {
		obs.Humidity = model.Some(float64(outsideHum))
	}
	windSpeed := rec[7]
	if windSpeed != 0xFF {
		obs.WindSpeed = model.Some(float64(windSpeed) * 0.44704) // mph -> m/s
	}
	windDir := rec[8]
	if windDir != 0xFF {
		obs.WindDirection = model.Some(float64(windDir) * (360.0 / 255.0))
	}
	barometer := uint16(rec[9]) | uint16(rec[10])<<8
	if barometer != 0 && barometer != 0xFFFF {
		obs.Pressure = model.Some(float64(barometer) / 1000 * 33.8639)
	}
	rainClicks := uint16(rec[11]) | uint16(rec[12])<<8
	obs.RainfallSinceLast = model.Some(float64(rainClicks) * 0.2)

	return obs, true
}
