package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"noteflare/internal/session"
)

var (
	hubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "connections",
		Help:      "Users currently joined to a document room",
	})

	hubRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "rooms",
		Help:      "Document rooms with at least one member",
	})

	hubPresence = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "presence_broadcasts_total",
		Help:      "Presence transitions broadcast to a room",
	}, []string{"collaborative"})

	hubRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "relayed_messages_total",
		Help:      "Edit frames fanned out to room members",
	}, []string{"outcome"})

	hubMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "malformed_messages_total",
		Help:      "Inbound frames dropped because they failed to parse",
	})
)

// HubObserver mirrors hub transitions into Prometheus. Every method is a
// counter or gauge update, so it is safe to call under the hub lock.
type HubObserver struct{}

var _ session.Observer = HubObserver{}

func NewHubObserver() HubObserver { return HubObserver{} }

func (HubObserver) OnJoin(_, _ string, members int) {
	hubConnections.Inc()
	if members == 1 {
		hubRooms.Inc()
	}
}

func (HubObserver) OnLeave(_, _ string, members int) {
	hubConnections.Dec()
	if members == 0 {
		hubRooms.Dec()
	}
}

func (HubObserver) OnPresence(_ string, collaborative bool, _ int) {
	hubPresence.WithLabelValues(strconv.FormatBool(collaborative)).Inc()
}

func (HubObserver) OnRelay(_, _ string, delivered, dropped int) {
	hubRelayed.WithLabelValues("delivered").Add(float64(delivered))
	hubRelayed.WithLabelValues("dropped").Add(float64(dropped))
}

func (HubObserver) OnMalformed(_, _ string) {
	hubMalformed.Inc()
}
