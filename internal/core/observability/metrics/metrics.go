// Package metrics keeps in-process counters and gauges.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zeusync/replica/internal/core/observability/log"
)

type Counter interface {
	Inc()
	Add(delta uint64)
	Value() uint64
}

type Gauge interface {
	Set(v int64)
	Inc()
	Dec()
	Add(delta int64)
	Value() int64
}

type counter struct{ v atomic.Uint64 }

func (c *counter) Inc()             { c.v.Add(1) }
func (c *counter) Add(delta uint64) { c.v.Add(delta) }
func (c *counter) Value() uint64    { return c.v.Load() }

type gauge struct{ v atomic.Int64 }

func (g *gauge) Set(v int64)     { g.v.Store(v) }
func (g *gauge) Inc()            { g.v.Add(1) }
func (g *gauge) Dec()            { g.v.Add(-1) }
func (g *gauge) Add(delta int64) { g.v.Add(delta) }
func (g *gauge) Value() int64    { return g.v.Load() }

// Collector hands out named metrics. Asking twice for a name returns the
// same metric.
type Collector struct {
	counters sync.Map // name -> *counter
	gauges   sync.Map // name -> *gauge
}

func New() *Collector { return &Collector{} }

func (c *Collector) Counter(name string) Counter {
	v, _ := c.counters.LoadOrStore(name, &counter{})
	return v.(*counter)
}

func (c *Collector) Gauge(name string) Gauge {
	v, _ := c.gauges.LoadOrStore(name, &gauge{})
	return v.(*gauge)
}

// Snapshot is a point-in-time copy of every metric.
type Snapshot struct {
	Counters map[string]uint64
	Gauges   map[string]int64
}

func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{Counters: make(map[string]uint64), Gauges: make(map[string]int64)}
	c.counters.Range(func(k, v any) bool {
		s.Counters[k.(string)] = v.(*counter).Value()
		return true
	})
	c.gauges.Range(func(k, v any) bool {
		s.Gauges[k.(string)] = v.(*gauge).Value()
		return true
	})
	return s
}

// Fields renders the snapshot as log fields ordered by name.
func (s Snapshot) Fields() []log.Field {
	fields := make([]log.Field, 0, len(s.Counters)+len(s.Gauges))
	for _, name := range sortedNames(s.Counters) {
		fields = append(fields, log.Uint64(name, s.Counters[name]))
	}
	for _, name := range sortedNames(s.Gauges) {
		fields = append(fields, log.Int64(name, s.Gauges[name]))
	}
	return fields
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
