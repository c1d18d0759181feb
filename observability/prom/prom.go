/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

// Package prom exports protocol metrics to Prometheus.
package prom

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/overlaynet/rldp/observability"
)

// NewRegistry returns a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler returns a Prometheus HTTP handler bound to the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Observer exports node metrics to Prometheus.
type Observer struct {
	queriesInFlight prometheus.Gauge
	queryTotal      *prometheus.CounterVec
	queryRoundtrip  prometheus.Histogram
	servedTotal     *prometheus.CounterVec
	transferGauge   *prometheus.GaugeVec
	packetTotal     *prometheus.CounterVec
	droppedTotal    *prometheus.CounterVec
}

var _ observability.Observer = (*Observer)(nil)

// NewObserver registers node metrics on the registry.
func NewObserver(reg *prometheus.Registry) *Observer {
	o := &Observer{
		queriesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rldp_queries_in_flight",
			Help: "Outgoing queries currently running.",
		}),
		queryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rldp_query_total",
			Help: "Outgoing queries by result.",
		}, []string{"result"}),
		queryRoundtrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rldp_query_roundtrip_seconds",
			Help:    "Final roundtrip estimate of outgoing queries.",
			Buckets: prometheus.DefBuckets,
		}),
		servedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rldp_query_served_total",
			Help: "Inbound queries by subscriber claim outcome.",
		}, []string{"claimed"}),
		transferGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rldp_transfers",
			Help: "Live transfers by direction.",
		}, []string{"direction"}),
		packetTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rldp_packet_in_total",
			Help: "Inbound envelopes by kind.",
		}, []string{"kind"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rldp_packet_dropped_total",
			Help: "Inbound packets dropped by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		o.queriesInFlight,
		o.queryTotal,
		o.queryRoundtrip,
		o.servedTotal,
		o.transferGauge,
		o.packetTotal,
		o.droppedTotal,
	)
	return o
}

func (o *Observer) QueryStarted() {
	o.queriesInFlight.Inc()
}

func (o *Observer) QueryFinished(result observability.QueryResult, roundtrip time.Duration) {
	o.queriesInFlight.Dec()
	o.queryTotal.WithLabelValues(string(result)).Inc()
	o.queryRoundtrip.Observe(roundtrip.Seconds())
}

func (o *Observer) QueryServed(claimed bool) {
	if claimed {
		o.servedTotal.WithLabelValues("true").Inc()
	} else {
		o.servedTotal.WithLabelValues("false").Inc()
	}
}

func (o *Observer) TransferOpened(dir observability.Direction) {
	o.transferGauge.WithLabelValues(string(dir)).Inc()
}

func (o *Observer) TransferClosed(dir observability.Direction) {
	o.transferGauge.WithLabelValues(string(dir)).Dec()
}

func (o *Observer) PacketIn(kind observability.PacketKind) {
	o.packetTotal.WithLabelValues(string(kind)).Inc()
}

func (o *Observer) PacketDropped(reason observability.DropReason) {
	o.droppedTotal.WithLabelValues(string(reason)).Inc()
}
