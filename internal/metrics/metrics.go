// Package metrics collects Prometheus metrics for the reference kernel.
package metrics

import (
	"io"

	"cowfork/kernel"
	"cowfork/kernel/sim"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Collector holds the kernel metrics and implements sim.Observer.
type Collector struct {
	registry *prometheus.Registry

	SyscallsTotal   *prometheus.CounterVec
	PageFaultsTotal *prometheus.CounterVec
	FramesInUse     prometheus.Gauge
	Envs            prometheus.Gauge
}

var _ sim.Observer = (*Collector)(nil)

// New creates and registers all kernel metrics on a private registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,

		SyscallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cowfork_syscalls_total",
				Help: "Total number of syscalls by name and result code.",
			},
			[]string{"call", "result"},
		),

		PageFaultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cowfork_page_faults_total",
				Help: "Total number of user page faults by outcome.",
			},
			[]string{"outcome"},
		),

		FramesInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cowfork_frames_in_use",
				Help: "Number of reserved physical frames.",
			},
		),

		Envs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cowfork_envs",
				Help: "Number of allocated environments.",
			},
		),
	}

	reg.MustRegister(
		c.SyscallsTotal,
		c.PageFaultsTotal,
		c.FramesInUse,
		c.Envs,
	)

	return c
}

// Syscall implements sim.Observer.
func (c *Collector) Syscall(call string, err *kernel.Error) {
	result := kernel.Code(0)
	if err != nil {
		result = err.Code
		if result == 0 {
			result = kernel.CodeUnspecified
		}
	}
	c.SyscallsTotal.WithLabelValues(call, result.String()).Inc()
}

// PageFault implements sim.Observer.
func (c *Collector) PageFault(outcome sim.FaultOutcome) {
	c.PageFaultsTotal.WithLabelValues(string(outcome)).Inc()
}

// SetFramesInUse implements sim.Observer.
func (c *Collector) SetFramesInUse(n uint32) {
	c.FramesInUse.Set(float64(n))
}

// SetEnvs implements sim.Observer.
func (c *Collector) SetEnvs(n int) {
	c.Envs.Set(float64(n))
}

// Gather returns the current metric families.
func (c *Collector) Gather() ([]*dto.MetricFamily, error) {
	return c.registry.Gather()
}

// WriteText writes every metric to w in the Prometheus text format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}

	return nil
}
