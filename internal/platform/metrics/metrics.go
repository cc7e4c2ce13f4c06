// Package metrics owns the process-wide Prometheus registry. Feature packages
// register their collectors on Registry.Registerer() instead of the global
// default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg       *prometheus.Registry
	buildInfo *prometheus.GaugeVec
}

// New returns a registry preloaded with Go runtime and process collectors.
func New(service, version string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	buildInfo := promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleetdesk_build_info",
		Help: "Build information, always 1",
	}, []string{"service", "version"})
	buildInfo.WithLabelValues(service, version).Set(1)

	return &Registry{reg: reg, buildInfo: buildInfo}
}

func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
