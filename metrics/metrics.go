// Package metrics holds the prometheus collectors for the store, the
// subscription queues, and the scheduler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/Comcast/tuplescript/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tuplescript"

var (
	registerOnce sync.Once

	storeWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Writes accepted by the tuple store.",
		},
		[]string{"kind"},
	)
	storeSeq = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "seq",
			Help:      "Sequence number of the last accepted write.",
		},
	)
	subscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subs",
			Name:      "active",
			Help:      "Live subscriptions.",
		},
	)
	subsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subs",
			Name:      "events_queued_total",
			Help:      "Events appended to subscription queues.",
		},
	)
	subsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subs",
			Name:      "events_dropped_total",
			Help:      "Events evicted from full subscription queues.",
		},
	)
	subsOverflows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subs",
			Name:      "overflow_episodes_total",
			Help:      "Overflow episodes (one marker each).",
		},
	)
	taskTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sched",
			Name:      "task_transitions_total",
			Help:      "Task state transitions by destination state.",
		},
		[]string{"state"},
	)
	tasksLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sched",
			Name:      "tasks_live",
			Help:      "Tasks that haven't reached a terminal state.",
		},
	)
)

// Register registers all collectors with the default registry.  Calls
// after the first do nothing.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			storeWrites,
			storeSeq,
			subscriptions,
			subsDelivered,
			subsDropped,
			subsOverflows,
			taskTransitions,
			tasksLive,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// StoreListener counts the store's writes.  Add it with
// Store.AddListener.
type StoreListener struct{}

func (StoreListener) Changed(ev core.Event) {
	storeWrites.WithLabelValues(ev.Kind.String()).Inc()
	storeSeq.Set(float64(ev.Seq))
}

func SubscriptionAdded() {
	subscriptions.Inc()
}

func SubscriptionRemoved() {
	subscriptions.Dec()
}

func EventQueued() {
	subsDelivered.Inc()
}

// EventDropped records an eviction.  first is true for the eviction
// that started an overflow episode.
func EventDropped(first bool) {
	subsDropped.Inc()
	if first {
		subsOverflows.Inc()
	}
}

// TaskEntered records a task's transition into the given state.
func TaskEntered(state string, terminal bool) {
	taskTransitions.WithLabelValues(state).Inc()
	if terminal {
		tasksLive.Dec()
	}
}

func TaskSpawned() {
	tasksLive.Inc()
}
