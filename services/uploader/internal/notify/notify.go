// Package notify publishes upload outcomes and liveness heartbeats over MQTT so
// a supervisor can tell a stuck database retry loop from a healthy idle one.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/snowstudies/csas-stations/services/uploader/internal/reconcile"
)

// Config selects the broker and topic namespace.
type Config struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string
}

// Event is the JSON payload of every message.
type Event struct {
	Kind    string     `json:"kind"`
	Station string     `json:"station,omitempty"`
	Outcome string     `json:"outcome,omitempty"`
	Rows    int64      `json:"rows,omitempty"`
	Gaps    []GapEvent `json:"gaps,omitempty"`
	Attempt int        `json:"attempt,omitempty"`
	Pass    string     `json:"pass,omitempty"`
	Uploads int        `json:"uploads,omitempty"`
	Error   string     `json:"error,omitempty"`
	At      time.Time  `json:"at"`
}

type GapEvent struct {
	ArrayID      int       `json:"arrayid"`
	Hours        float64   `json:"hours"`
	EarliestNew  time.Time `json:"earliest_new"`
	LatestStored time.Time `json:"latest_stored"`
}

type publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Notifier implements reconcile.Reporter and schedule.PassObserver.
type Notifier struct {
	client publisher
	prefix string
	log    *slog.Logger
	now    func() time.Time
}

// New builds a notifier with an auto-reconnecting client; call Connect before use.
func New(cfg Config, log *slog.Logger) *Notifier {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "error", err)
	})

	return newNotifier(mqtt.NewClient(opts), cfg.TopicPrefix, log)
}

func newNotifier(p publisher, prefix string, log *slog.Logger) *Notifier {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "csas/uploader"
	}
	return &Notifier{client: p, prefix: prefix, log: log, now: time.Now}
}

// Connect waits for the first broker connection, honouring ctx.
func (n *Notifier) Connect(ctx context.Context) error {
	c, ok := n.client.(mqtt.Client)
	if !ok || c.IsConnected() {
		return nil
	}
	token := c.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Close disconnects from the broker.
func (n *Notifier) Close() {
	if c, ok := n.client.(mqtt.Client); ok {
		c.Disconnect(250)
	}
}

func (n *Notifier) Outcome(res reconcile.Result) {
	ev := Event{
		Kind:    "outcome",
		Station: res.Station,
		Outcome: res.Outcome.String(),
		Rows:    res.Rows,
		At:      res.At,
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	for _, g := range res.Gaps {
		ev.Gaps = append(ev.Gaps, GapEvent{
			ArrayID:      g.ArrayID,
			Hours:        g.Hours(),
			EarliestNew:  g.EarliestNew,
			LatestStored: g.LatestStored,
		})
	}
	n.publish(fmt.Sprintf("%s/stations/%s/outcome", n.prefix, res.Station), true, ev)
}

// Retry is published on every failed database attempt, so an unbounded
// reconnect loop still produces a heartbeat.
func (n *Notifier) Retry(station string, attempt int, err error) {
	n.publish(n.prefix+"/heartbeat", false, Event{
		Kind:    "retry",
		Station: station,
		Attempt: attempt,
		Error:   err.Error(),
		At:      n.now(),
	})
}

func (n *Notifier) PassCompleted(id string, _ time.Time, results []reconcile.Result) {
	n.publish(n.prefix+"/heartbeat", false, Event{
		Kind:    "pass",
		Pass:    id,
		Uploads: len(results),
		At:      n.now(),
	})
}

func (n *Notifier) publish(topic string, retained bool, ev Event) {
	if !n.client.IsConnected() {
		n.log.Debug("mqtt not connected, dropping event", "topic", topic, "kind", ev.Kind)
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		n.log.Error("marshal event", "error", err)
		return
	}

	token := n.client.Publish(topic, 1, retained, data)
	if !token.WaitTimeout(5 * time.Second) {
		n.log.Warn("publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		n.log.Error("failed to publish event", "topic", topic, "error", err)
		return
	}
	n.log.Debug("published event", "topic", topic, "kind", ev.Kind)
}
