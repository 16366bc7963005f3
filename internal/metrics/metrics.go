// Package metrics exposes service counters in the Prometheus text format.
//
// Values live in atomics or are read from callbacks at scrape time; Gather
// converts them to client_model families and expfmt encodes them.
package metrics

import (
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Counter is a monotonically increasing value.
type Counter struct{ v atomic.Uint64 }

func (c *Counter) Inc()          { c.v.Add(1) }
func (c *Counter) Add(n uint64)  { c.v.Add(n) }
func (c *Counter) Value() uint64 { return c.v.Load() }

// CounterVec is a set of counters partitioned by one label.
type CounterVec struct {
	mu     sync.Mutex
	label  string
	values map[string]*Counter
}

// With returns the counter for the given label value, creating it if needed.
func (v *CounterVec) With(value string) *Counter {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.values[value]
	if !ok {
		c = &Counter{}
		v.values[value] = c
	}
	return c
}

type family struct {
	name    string
	help    string
	typ     dto.MetricType
	collect func() []*dto.Metric
}

// Registry holds every exported family.
type Registry struct {
	mu       sync.Mutex
	families []family
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) register(f family) {
	r.mu.Lock()
	r.families = append(r.families, f)
	r.mu.Unlock()
}

func (r *Registry) NewCounter(name, help string) *Counter {
	c := &Counter{}
	r.register(family{name: name, help: help, typ: dto.MetricType_COUNTER, collect: func() []*dto.Metric {
		return []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(float64(c.Value()))}}}
	}})
	return c
}

func (r *Registry) NewCounterVec(name, help, label string) *CounterVec {
	v := &CounterVec{label: label, values: make(map[string]*Counter)}
	r.register(family{name: name, help: help, typ: dto.MetricType_COUNTER, collect: func() []*dto.Metric {
		v.mu.Lock()
		defer v.mu.Unlock()
		keys := make([]string, 0, len(v.values))
		for k := range v.values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]*dto.Metric, 0, len(keys))
		for _, k := range keys {
			out = append(out, &dto.Metric{
				Label:   []*dto.LabelPair{{Name: proto.String(v.label), Value: proto.String(k)}},
				Counter: &dto.Counter{Value: proto.Float64(float64(v.values[k].Value()))},
			})
		}
		return out
	}})
	return v
}

// GaugeFunc exports the value returned by fn at scrape time.
func (r *Registry) GaugeFunc(name, help string, fn func() float64) {
	r.register(family{name: name, help: help, typ: dto.MetricType_GAUGE, collect: func() []*dto.Metric {
		return []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(fn())}}}
	}})
}

// CounterFunc exports a counter maintained elsewhere.
func (r *Registry) CounterFunc(name, help string, fn func() float64) {
	r.register(family{name: name, help: help, typ: dto.MetricType_COUNTER, collect: func() []*dto.Metric {
		return []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(fn())}}}
	}})
}

// Gather snapshots every family, sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	fams := append([]family(nil), r.families...)
	r.mu.Unlock()

	sort.Slice(fams, func(i, j int) bool { return fams[i].name < fams[j].name })

	out := make([]*dto.MetricFamily, 0, len(fams))
	for _, f := range fams {
		out = append(out, &dto.MetricFamily{
			Name:   proto.String(f.name),
			Help:   proto.String(f.help),
			Type:   f.typ.Enum(),
			Metric: f.collect(),
		})
	}
	return out
}

// WriteText encodes every family in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry on GET.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		_ = r.WriteText(w)
	})
}
