// Package metrics exposes the service's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatRequests counts routed chat messages by resulting action.
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ankichat",
			Name:      "chat_requests_total",
			Help:      "Chat messages routed, labeled by resulting action.",
		},
		[]string{"action"},
	)

	// CompactionsApplied counts notes mutated by apply.
	CompactionsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ankichat",
			Name:      "compactions_applied_total",
			Help:      "Notes whose primary field was replaced by a compacted candidate.",
		},
	)

	// NotesRestored counts notes restored by rollback.
	NotesRestored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ankichat",
			Name:      "notes_restored_total",
			Help:      "Notes restored from their backup field.",
		},
	)
)
