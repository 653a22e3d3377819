// Package metrics registers the prometheus collectors shared by the
// client SDK and the dev hub. Exposed via promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deskchat_messages_sent_total",
		Help: "Chat messages sent via the REST create endpoint.",
	})
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deskchat_messages_received_total",
		Help: "Chat messages received over the realtime transport.",
	})
	DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deskchat_duplicate_events_total",
		Help: "Realtime events dropped by id-based de-duplication.",
	})
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deskchat_transport_reconnects_total",
		Help: "Transport reconnect attempts after unexpected disconnects.",
	})
	MarkReadCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deskchat_mark_read_calls_total",
		Help: "Mark-read calls issued to the server.",
	})
	MarkReadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deskchat_mark_read_failures_total",
		Help: "Mark-read calls that failed (not retried).",
	})
	NotificationsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deskchat_notifications_received_total",
		Help: "Notification events received over the realtime transport.",
	})
	UnreadMessages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deskchat_unread_messages",
		Help: "Current unread message count per attached ticket.",
	}, []string{"ticket"})
	ConnectionUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deskchat_transport_connected",
		Help: "1 when the realtime transport is connected.",
	})
)
