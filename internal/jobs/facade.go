// Package jobs implements the downstream jobs facade spec.md §6 consumes
// (enqueueMinmax / enqueueAnomalyMonitoring / enqueueMonthMinmax) and the
// debounced publisher (C5, spec.md §4.5) that sits in front of it. The
// teacher has no direct analogue for a job queue — the closest pack
// reference is ClusterCockpit-cc-backend's nats.go usage for its worker
// dispatch — so the wire shape here (one core-NATS publish per job,
// msgpack-encoded body) is new, grounded on that repo's publish pattern
// and on the teacher's own use of vmihailenco/msgpack for compact framing
// elsewhere in the pack.
package jobs

import (
	"context"
	"fmt"

	"github.com/meteo-concept/ingestd/internal/model"
	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
)

// Kind is the job-request discriminator spec.md §3's JobRequest carries.
type Kind string

const (
	KindMinmax              Kind = "minmax"
	KindAnomalyMonitoring   Kind = "anomaly-monitoring"
	KindMonthMinmax         Kind = "month-minmax"
)

// Facade is the enqueue half of the consumed contract from spec.md §6.
// dequeue/markFinished belong to the separate batch workers this spec
// treats as external collaborators (§1's "Out of scope") and are not part
// of this interface.
type Facade interface {
	EnqueueMinmax(ctx context.Context, station model.StationID, begin, end int64) error
	EnqueueAnomalyMonitoring(ctx context.Context, station model.StationID, begin, end int64) error
	EnqueueMonthMinmax(ctx context.Context, station model.StationID, begin, end int64) error
}

// wireJob is the msgpack-encoded body published to NATS.
type wireJob struct {
	Station model.StationID `msgpack:"station"`
	Begin   int64           `msgpack:"begin_epoch_s"`
	End     int64           `msgpack:"end_epoch_s"`
	Kind    Kind            `msgpack:"kind"`
}

// NATSFacade publishes one core-pubsub message per enqueue call to a
// fixed subject, msgpack-encoded. Delivery is best-effort and at most
// once: a core-NATS publish is not acknowledged by any subscriber, and
// spec.md §1's Non-goals exclude exactly-once delivery guarantees for
// this core.
type NATSFacade struct {
	conn    *nats.Conn
	subject string
}

// NewNATSFacade connects to url and returns a Facade publishing to
// subject.
func NewNATSFacade(url, subject string) (*NATSFacade, error) {
	conn, err := nats.Connect(url, nats.Name("ingestd"))
	if err != nil {
		return nil, fmt.Errorf("jobs: connect to nats at %s: %w", url, err)
	}
	return &NATSFacade{conn: conn, subject: subject}, nil
}

func (f *NATSFacade) Close() {
	if f.conn != nil {
		f.conn.Close()
	}
}

func (f *NATSFacade) publish(_ context.Context, station model.StationID, begin, end int64, kind Kind) error {
	body, err := msgpack.Marshal(wireJob{Station: station, Begin: begin, End: end, Kind: kind})
	if err != nil {
		return fmt.Errorf("jobs: encode job: %w", err)
	}
	if err := f.conn.Publish(f.subject, body); err != nil {
		return fmt.Errorf("jobs: publish to %s: %w", f.subject, err)
	}
	return nil
}

func (f *NATSFacade) EnqueueMinmax(ctx context.Context, station model.StationID, begin, end int64) error {
	return f.publish(ctx, station, begin, end, KindMinmax)
}

func (f *NATSFacade) EnqueueAnomalyMonitoring(ctx context.Context, station model.StationID, begin, end int64) error {
	return f.publish(ctx, station, begin, end, KindAnomalyMonitoring)
}

func (f *NATSFacade) EnqueueMonthMinmax(ctx context.Context, station model.StationID, begin, end int64) error {
	return f.publish(ctx, station, begin, end, KindMonthMinmax)
}

var _ Facade = (*NATSFacade)(nil)
