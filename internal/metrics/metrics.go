package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay Metrics
var (
	// RelayMembersCurrent tracks live relay members
	RelayMembersCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kds_relay_members_current",
			Help: "Number of members currently attached to the relay",
		},
	)

	// RelayChannelsCurrent tracks channels with at least one member
	RelayChannelsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kds_relay_channels_current",
			Help: "Number of channels with at least one member",
		},
	)

	// RelayPublishTotal tracks publish calls by source (http, redis)
	RelayPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kds_relay_publish_total",
			Help: "Total publish calls by source",
		},
		[]string{"source"},
	)

	// RelayDeliveredTotal tracks messages handed to member writers
	RelayDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kds_relay_delivered_total",
			Help: "Total messages enqueued to relay members",
		},
	)

	// RelaySlowMembersEvicted tracks members dropped because their buffer was full
	RelaySlowMembersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kds_relay_slow_members_evicted_total",
			Help: "Total relay members evicted due to a full send buffer",
		},
	)

	// RelayMalformedFramesTotal tracks inbound frames that failed validation
	RelayMalformedFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kds_relay_malformed_frames_total",
			Help: "Total malformed inbound frames ignored by the relay",
		},
	)

	// RelayPanicsTotal tracks actor panic recoveries
	RelayPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kds_relay_panics_total",
			Help: "Total relay actor panic recoveries",
		},
	)
)

// Connection Metrics
var (
	// ConnectionState is 1 while the display connection is open, 0 otherwise
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kds_connection_open",
			Help: "1 if the relay connection is open, 0 otherwise",
		},
	)

	// ConnectionReconnectsTotal tracks reconnect attempts
	ConnectionReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kds_connection_reconnects_total",
			Help: "Total reconnect attempts after the relay connection closed",
		},
	)

	// ConnectionDroppedTotal tracks unparsable inbound payloads
	ConnectionDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kds_connection_dropped_messages_total",
			Help: "Total inbound payloads dropped because they were not valid JSON",
		},
	)
)

// Reconciler Metrics
var (
	// PollsTotal tracks full polls by outcome (applied, unchanged, discarded, error)
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kds_reconciler_polls_total",
			Help: "Total full polls by outcome",
		},
		[]string{"outcome"},
	)

	// PollDuration tracks full poll latency in seconds
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kds_reconciler_poll_duration_seconds",
			Help:    "Full poll duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// DeltasTotal tracks push deltas by type and outcome (applied, discarded, miss)
	DeltasTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kds_reconciler_deltas_total",
			Help: "Total push deltas by message type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// ProtocolErrorsTotal tracks push messages rejected at the boundary
	ProtocolErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kds_protocol_errors_total",
			Help: "Total push messages rejected by the protocol decoder",
		},
	)

	// ReadyNoticesTotal tracks ready notices raised
	ReadyNoticesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kds_ready_notices_total",
			Help: "Total order ready notices raised",
		},
	)
)

// Drag Metrics
var (
	// DragDropsTotal tracks drops by kind (reorder, move, ignored)
	DragDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kds_drag_drops_total",
			Help: "Total drag drops by kind",
		},
		[]string{"kind"},
	)

	// WriteFailuresTotal tracks durable writes that failed after an optimistic change
	WriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kds_write_failures_total",
			Help: "Total durable writes that failed after an optimistic change",
		},
		[]string{"operation"},
	)
)
