package logger

import (
	"sort"
	"sync"
	"sync/atomic"
)

// ComponentCounts is the number of warnings and errors a component logged.
type ComponentCounts struct {
	Component string
	Warnings  int64
	Errors    int64
}

type counter struct {
	warns  int64
	errors int64
}

var components sync.Map // map[string]*counter

func counterFor(component string) *counter {
	if c, ok := components.Load(component); ok {
		return c.(*counter)
	}
	c, _ := components.LoadOrStore(component, &counter{})
	return c.(*counter)
}

func recordWarn(component string) {
	atomic.AddInt64(&counterFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&counterFor(component).errors, 1)
}

// Report returns warning and error counts per component, sorted by name.
func Report() []ComponentCounts {
	var out []ComponentCounts
	components.Range(func(k, v any) bool {
		c := v.(*counter)
		out = append(out, ComponentCounts{
			Component: k.(string),
			Warnings:  atomic.LoadInt64(&c.warns),
			Errors:    atomic.LoadInt64(&c.errors),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// ResetReport clears all counts.
func ResetReport() {
	components.Range(func(k, _ any) bool {
		components.Delete(k)
		return true
	})
}
