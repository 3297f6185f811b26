package observ

import (
	"sort"
	"strings"
	"sync"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64 // name -> labelsKey -> count
}

var reg = &registry{
	counters: map[string]map[string]int64{},
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	m[canonLabels(labels)]++
}

// CounterValue returns the current count for a name+labels pair.
// Used by tests and the metrics snapshot endpoint.
func CounterValue(name string, labels map[string]string) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		return 0
	}
	return m[canonLabels(labels)]
}

// Snapshot returns a copy of all counters keyed "name{labels}".
func Snapshot() map[string]int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make(map[string]int64)
	for name, m := range reg.counters {
		for k, v := range m {
			key := name
			if k != "" {
				key = name + "{" + k + "}"
			}
			out[key] = v
		}
	}
	return out
}
