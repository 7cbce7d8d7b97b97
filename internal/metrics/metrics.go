package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	childRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kr",
		Name:      "child_running",
		Help:      "Whether the supervised child is currently running (1=running, 0=not running).",
	})

	crashes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kr",
		Name:      "crashes_total",
		Help:      "Total number of unsuccessful child exits.",
	})

	restarts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kr",
		Name:      "restarts_total",
		Help:      "Total number of restarts initiated after a crash.",
	})

	windowEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kr",
		Name:      "crash_window_entries",
		Help:      "Crashes currently counting against the restart limit.",
	})

	windowLimit = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kr",
		Name:      "crash_window_limit",
		Help:      "Configured number of crashes tolerated within the window.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "kr",
		Name:      "build_info",
		Help:      "Build metadata for the running kr binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(childRunning, crashes, restarts, windowEntries, windowLimit, buildInfo)
}

// Registry returns the Prometheus registry containing all kr metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetChildRunning records whether a child is currently alive.
func SetChildRunning(running bool) {
	value := 0.0
	if running {
		value = 1.0
	}
	childRunning.Set(value)
}

func IncrementCrashes() {
	crashes.Inc()
}

func IncrementRestarts() {
	restarts.Inc()
}

// SetWindow publishes the crash window occupancy and its limit.
func SetWindow(count, limit int) {
	if count < 0 {
		count = 0
	}
	windowEntries.Set(float64(count))
	if limit > 0 {
		windowLimit.Set(float64(limit))
	}
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
