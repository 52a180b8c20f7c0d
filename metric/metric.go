// Package metric publishes pipeline counters through expvar.
package metric

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const componentsLabel = "psrpipe.components"

const (
	// MessageCounter measures number of chunks or rows.
	MessageCounter = "Messages"
	// SampleCounter measures number of samples per stream.
	SampleCounter = "Samples"
	// LatencyCounter measures latency between measure calls.
	LatencyCounter = "Latency"
	// DurationCounter counts the observation time covered.
	DurationCounter = "Duration"
	// ComponentCounter counts number of metered component instances.
	ComponentCounter = "Components"
)

var (
	components = metrics{
		m: make(map[string]metric),
	}

	counters = []string{
		MessageCounter,
		SampleCounter,
		LatencyCounter,
		DurationCounter,
		ComponentCounter,
	}
)

// Get metrics values for provided component.
func Get(component string) map[string]string {
	return getCounters(component)
}

// GetAll returns counters for all measured components.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	components.Lock()
	defer components.Unlock()
	for component := range components.m {
		m[component] = getCounters(component)
	}
	return m
}

func getCounters(component string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(component, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// ResetFunc returns new Measure closure. This closure is needed to postpone metrics
// capture until component is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when a chunk or a row is handled.
type MeasureFunc func(samples int64)

// Meter creates new meter closure to capture component counters.
// The sample rate is used to convert samples into observation time.
func Meter(component string, sampleRate float64) ResetFunc {
	metric := components.get(component)
	metric.components.Add(1)
	return func() MeasureFunc {
		calledAt := time.Now()
		var (
			samples  int64
			duration time.Duration
		)
		return func(s int64) {
			metric.latency.set(time.Since(calledAt))
			metric.messages.Add(1)
			metric.samples.Add(s)
			// recalculate duration only when size has changed
			if samples != s && sampleRate > 0 {
				samples = s
				duration = time.Duration(float64(s) / sampleRate * float64(time.Second))
			}
			metric.duration.add(duration)
			calledAt = time.Now()
		}
	}
}

type metrics struct {
	sync.Mutex
	m map[string]metric
}

func (m *metrics) get(component string) metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[component]; ok {
		return metric
	}
	metric := newMetric(component)
	m.m[component] = metric
	return metric
}

type metric struct {
	components *expvar.Int
	messages   *expvar.Int
	samples    *expvar.Int
	latency    *duration
	duration   *duration
}

func newMetric(component string) metric {
	m := metric{
		components: expvar.NewInt(key(component, ComponentCounter)),
		messages:   expvar.NewInt(key(component, MessageCounter)),
		samples:    expvar.NewInt(key(component, SampleCounter)),
		latency:    &duration{},
		duration:   &duration{},
	}
	expvar.Publish(key(component, LatencyCounter), m.latency)
	expvar.Publish(key(component, DurationCounter), m.duration)
	return m
}

func key(component, counter string) string {
	return fmt.Sprintf("%s.%s.%s", componentsLabel, component, counter)
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&v.d)).String())
}

func (v *duration) add(delta time.Duration) {
	atomic.AddInt64(&v.d, int64(delta))
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
