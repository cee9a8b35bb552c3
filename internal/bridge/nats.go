// Package bridge republishes match events onto external transports for
// consumers outside this process. Bridges are ordinary bus subscribers: a
// broker outage never disturbs the pipeline.
package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ernie/pickup-coordinator/internal/domain"
	"github.com/ernie/pickup-coordinator/internal/eventbus"
	"github.com/ernie/pickup-coordinator/internal/logging"
)

// NATS forwards every match event as JSON on <prefix>.<kind> subjects.
type NATS struct {
	conn   *nats.Conn
	prefix string
	log    *slog.Logger
	sub    *eventbus.Subscription
}

// NewNATS connects to the broker. Reconnects are unbounded so a broker
// restart only costs the events published while it was away.
func NewNATS(url, subjectPrefix string, log *slog.Logger) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("pickup-coordinator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	return &NATS{
		conn:   conn,
		prefix: subjectPrefix,
		log:    log.With(logging.FieldComponent, "nats_bridge"),
	}, nil
}

// Attach subscribes the bridge to every event kind on the bus.
func (n *NATS) Attach(bus *eventbus.Bus) {
	n.sub = bus.SubscribeAll(n.forward)
}

func (n *NATS) forward(ev domain.MatchEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		n.log.Error("marshaling event", logging.FieldKind, ev.Kind, logging.FieldError, err)
		return
	}
	subject := n.prefix + "." + string(ev.Kind)
	if err := n.conn.Publish(subject, data); err != nil {
		n.log.Warn("publishing event to NATS", "subject", subject, logging.FieldError, err)
	}
}

// Close detaches from the bus and drains the connection.
func (n *NATS) Close() {
	if n.sub != nil {
		n.sub.Unsubscribe()
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
