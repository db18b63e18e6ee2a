package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes every metric name.
const namespace = "strip_control"

// Run collects the outcome of a single invocation so it can be handed to the
// node_exporter textfile collector.
type Run struct {
	registry *prometheus.Registry

	lastRun   prometheus.Gauge
	success   prometheus.Gauge
	duration  prometheus.Gauge
	desired   prometheus.Gauge
	plugState *prometheus.GaugeVec
}

// NewRun creates the gauges of one run, labelled with the tool and the target alias.
func NewRun(tool, target string) *Run {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"tool": tool, "target": target}

	r := &Run{
		registry: registry,
		lastRun:  newGauge(registry, labels, "last_run_timestamp_seconds", "Unix time the run finished."),
		success:  newGauge(registry, labels, "last_run_success", "1 if every outlet was switched, 0 otherwise."),
		duration: newGauge(registry, labels, "last_run_duration_seconds", "Wall time of the run."),
		desired:  newGauge(registry, labels, "desired_state", "Requested state, 1 for on and 0 for off."),
		plugState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "plug_state",
			Help:        "State of each outlet after the run, 1 for on and 0 for off.",
			ConstLabels: labels,
		}, []string{"plug"}),
	}

	registry.MustRegister(r.plugState)

	return r
}

// ObservePlug records the state an outlet ended up in.
func (r *Run) ObservePlug(alias string, on bool) {
	setFromBool(r.plugState.WithLabelValues(alias), on)
}

// Finish records the requested state and the overall outcome.
func (r *Run) Finish(desired bool, started time.Time, err error) {
	now := time.Now()

	setFromBool(r.desired, desired)
	setFromBool(r.success, err == nil)
	r.duration.Set(now.Sub(started).Seconds())
	r.lastRun.Set(float64(now.UnixNano()) / float64(time.Second))
}

// WriteFile atomically writes the gauges to path in the text exposition format.
func (r *Run) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}

	return nil
}

// Gatherer exposes the underlying registry.
func (r *Run) Gatherer() prometheus.Gatherer {
	return r.registry
}

func newGauge(registry prometheus.Registerer, labels prometheus.Labels, name, help string) prometheus.Gauge {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	})
	registry.MustRegister(gauge)

	return gauge
}

func setFromBool(gauge prometheus.Gauge, value bool) {
	if value {
		gauge.Set(1)
	} else {
		gauge.Set(0)
	}
}
