package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for the packetsDropped counter.
const (
	dropBadFrame      = "bad_frame"
	dropOverflow      = "overflow"
	dropUnknownSecret = "unknown_secret"
	dropRegistryError = "registry_error"
	dropUnmatched     = "unmatched"
	dropExtractError  = "extract_error"
)

var (
	packetsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pickup_relay_packets_received_total",
			Help: "Total number of datagrams read from the log relay socket",
		},
	)

	packetsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_relay_packets_dropped_total",
			Help: "Total number of datagrams dropped, by reason",
		},
		[]string{"reason"},
	)

	eventsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_relay_events_extracted_total",
			Help: "Total number of match events extracted from log lines",
		},
		[]string{"kind"},
	)

	receiverRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pickup_relay_receiver_restarts_total",
			Help: "Total number of receiver restarts after socket faults",
		},
	)
)
