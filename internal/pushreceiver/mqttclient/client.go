// Package mqttclient implements C8's MQTT push receiver (spec.md §4.8,
// §6): one long-lived paho.mqtt.golang connection subscribing to the
// topic list pulled from the MQTT-kind station registry, dispatching
// each message by sensor model to a C3 decoder and sharing the C4
// write path, the same way the teacher's own long-lived-connection
// connectors (one goroutine per device) are structured.
package mqttclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/meteo-concept/ingestd/internal/connector"
	"github.com/meteo-concept/ingestd/internal/decode"
	"github.com/meteo-concept/ingestd/internal/jobs"
	"github.com/meteo-concept/ingestd/internal/log"
	"github.com/meteo-concept/ingestd/internal/model"
	"github.com/meteo-concept/ingestd/internal/store"
)

// Client is the C8 MQTT connector: one broker connection, many
// per-station topic subscriptions.
type Client struct {
	brokerURL string
	clientID  string
	facade    store.Facade
	debounce  *jobs.Debouncer
	registry  *decode.Registry

	mu          sync.Mutex
	cli         mqtt.Client
	activeSince time.Time
	lastIngest  time.Time
	nbMessages  int64
	nbErrors    int64
	stopped     bool
}

// New builds a Client. brokerURL is e.g. "tcp://broker.example.com:1883".
func New(brokerURL, clientID string, facade store.Facade, debounce *jobs.Debouncer) *Client {
	return &Client{
		brokerURL: brokerURL,
		clientID:  clientID,
		facade:    facade,
		debounce:  debounce,
		registry:  decode.NewRegistry(),
	}
}

func (c *Client) Name() string { return "pushreceiver:mqtt" }

// Start connects to the broker and subscribes to every MQTT-kind
// station's topic (spec.md §4.8: "topic begins with <model>/<tenant>/…").
func (c *Client) Start(ctx context.Context) error {
	stations, err := c.facade.GetStationsByKind(ctx, store.KindMQTT)
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions().AddBroker(c.brokerURL).SetClientID(c.clientID)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Errorf("[pushreceiver/mqtt] connection: lost connection to %s: %v", c.brokerURL, err)
	})

	cli := mqtt.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	c.mu.Lock()
	c.cli = cli
	c.activeSince = time.Now()
	c.stopped = false
	c.mu.Unlock()

	for _, st := range stations {
		if st.MQTTTopic == "" {
			continue
		}
		station := st.Station
		if token := cli.Subscribe(st.MQTTTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			c.handle(ctx, station, msg.Topic(), msg.Payload())
		}); token.Wait() && token.Error() != nil {
			log.Errorf("[pushreceiver/mqtt] management: subscribe to %q failed: %v", st.MQTTTopic, token.Error())
		}
	}
	return nil
}

// handle is the single write path every subscription's callback funnels
// through: decode the liveobjects-style JSON envelope (spec.md §4.3),
// resolve the sensor model, dispatch to a C3 decoder, then insert.
func (c *Client) handle(ctx context.Context, station model.StationID, topic string, payload []byte) {
	var env decode.LiveObjectsEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.mu.Lock()
		c.nbErrors++
		c.mu.Unlock()
		log.Warnf("[pushreceiver/mqtt] measurement: malformed envelope on topic %s: %v", topic, err)
		return
	}

	sensorModel, ok := decode.ResolveModel(&env)
	if !ok {
		c.mu.Lock()
		c.nbErrors++
		c.mu.Unlock()
		log.Warnf("[pushreceiver/mqtt] management: no decoder for envelope on topic %s (stream %s)", topic, env.StreamID)
		return
	}

	dec, err := c.registry.New(sensorModel)
	if err != nil {
		c.mu.Lock()
		c.nbErrors++
		c.mu.Unlock()
		log.Warnf("[pushreceiver/mqtt] management: %v", err)
		return
	}

	statefulDec, _ := dec.(interface {
		IngestWithStore(ctx context.Context, station model.StationID, payload string, timestamp time.Time, store decode.CounterStore) error
	})
	var ingestErr error
	if statefulDec != nil {
		ingestErr = statefulDec.IngestWithStore(ctx, station, env.Value.Payload, env.Timestamp, c.facade)
	} else {
		ingestErr = dec.Ingest(ctx, station, env.Value.Payload, env.Timestamp)
	}
	if ingestErr != nil || !dec.ValidAfterParse() {
		c.mu.Lock()
		c.nbErrors++
		c.mu.Unlock()
		log.Warnf("[pushreceiver/mqtt] measurement: decode failed for %s on topic %s: %v", station, topic, ingestErr)
		return
	}

	obs := dec.ToObservation(station)
	if _, err := c.facade.InsertPoint(ctx, obs); err != nil {
		c.mu.Lock()
		c.nbErrors++
		c.mu.Unlock()
		log.Errorf("[pushreceiver/mqtt] measurement: insert failed for %s: %v", station, err)
		return
	}
	if stateful, ok := dec.(decode.StatefulDecoder); ok {
		if err := stateful.CacheAfterInsert(ctx, station, c.facade); err != nil {
			log.Warnf("[pushreceiver/mqtt] management: cache update failed for %s: %v", station, err)
		}
	}
	if c.debounce != nil {
		c.debounce.Notify(station, obs.Timestamp, obs.Timestamp)
	}

	c.mu.Lock()
	c.lastIngest = time.Now()
	c.nbMessages++
	c.mu.Unlock()
}

func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.cli == nil {
		return nil
	}
	c.stopped = true
	c.cli.Disconnect(250)
	return nil
}

// Reload re-subscribes against the current station registry: paho
// tolerates duplicate Subscribe calls on the same topic, so this is a
// plain re-run of the subscription loop rather than a full reconnect.
func (c *Client) Reload(ctx context.Context) error {
	c.mu.Lock()
	cli := c.cli
	stopped := c.stopped
	c.mu.Unlock()
	if cli == nil || stopped {
		return nil
	}
	stations, err := c.facade.GetStationsByKind(ctx, store.KindMQTT)
	if err != nil {
		return err
	}
	for _, st := range stations {
		if st.MQTTTopic == "" {
			continue
		}
		station := st.Station
		cli.Subscribe(st.MQTTTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			c.handle(ctx, station, msg.Topic(), msg.Payload())
		})
	}
	return nil
}

func (c *Client) Status() connector.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	short := connector.StatusOK
	if c.stopped {
		short = connector.StatusStopped
	} else if c.nbMessages == 0 {
		short = connector.StatusIdle
	}
	return connector.Status{
		ActiveSince:          c.activeSince,
		LastDownload:         c.lastIngest,
		DownloadsSinceReload: c.nbMessages,
		ShortStatus:          short,
	}
}

var _ connector.Connector = (*Client)(nil)
