// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package metrics exposes leveler counters and gauges in Prometheus format.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/leveler/internal/actuator"
)

const namespace = "leveler"

type Metrics struct {
	reg *prometheus.Registry

	samples         prometheus.Counter
	transportErrors *prometheus.CounterVec
	encodingErrors  prometheus.Counter
	safetyTrips     prometheus.Counter
	states          *prometheus.CounterVec

	lateral prometheus.Gauge
	duty    prometheus.Gauge
	pattern prometheus.Gauge
	stopped prometheus.Gauge
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Sensor samples read and converted.",
		}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "I2C failures by kind.",
		}, []string{"kind"}),
		encodingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoding_errors_total",
			Help:      "Telemetry lines dropped by the encoder.",
		}),
		safetyTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_trips_total",
			Help:      "Safety stop edges handled.",
		}),
		states: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "controller_state_entries_total",
			Help:      "Controller state entries.",
		}, []string{"state"}),
		lateral: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accel_y_g",
			Help:      "Last lateral acceleration.",
		}),
		duty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pwm_duty",
			Help:      "Current PWM compare value.",
		}),
		pattern: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "port_pattern",
			Help:      "Current digital port pattern.",
		}),
		stopped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "safety_hold",
			Help:      "1 while the safety hold is active.",
		}),
	}
	m.reg.MustRegister(m.samples, m.transportErrors, m.encodingErrors, m.safetyTrips,
		m.states, m.lateral, m.duty, m.pattern, m.stopped)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Sample(ay float64) {
	if m == nil {
		return
	}
	m.samples.Inc()
	m.lateral.Set(ay)
}

func (m *Metrics) TransportError(kind string) {
	if m == nil {
		return
	}
	m.transportErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) EncodingError() {
	if m == nil {
		return
	}
	m.encodingErrors.Inc()
}

func (m *Metrics) SafetyTrip() {
	if m == nil {
		return
	}
	m.safetyTrips.Inc()
}

// ControllerState counts a state entry.
func (m *Metrics) ControllerState(name string) {
	if m == nil {
		return
	}
	m.states.WithLabelValues(name).Inc()
}

// Actuator matches actuator.Output.OnChange.
func (m *Metrics) Actuator(s actuator.State, stopped bool) {
	if m == nil {
		return
	}
	m.duty.Set(float64(s.Duty))
	m.pattern.Set(float64(s.Pattern))
	if stopped {
		m.stopped.Set(1)
	} else {
		m.stopped.Set(0)
	}
}
