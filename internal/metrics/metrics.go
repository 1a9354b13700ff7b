// Package metrics wires the shared Prometheus registry, plus the
// process/runtime collectors and an HTTP handler that serves a registry in
// the exposition format. cmd/maker builds the registry and passes it to the
// stream client and the protocol cache; no binary mounts the handler on an
// HTTP server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry builds a registry pre-populated with the standard process and
// Go runtime collectors, matching prometheus.DefaultRegisterer's usual
// composition without reaching for the global default.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return reg
}

// Handler returns the HTTP handler that exposes reg's metrics in the
// Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
