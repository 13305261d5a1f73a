// Package aggregate assembles engine outputs into the normalized metric
// fact table consumed by persistence and dashboards.
package aggregate

import (
	"fmt"
	"sort"
	"sync"

	"gtfsqual.transitlab.cl/internal/service"
)

type EntityType string

const (
	EntityStop   EntityType = "stop"
	EntityRoute  EntityType = "route"
	EntitySystem EntityType = "system"
)

// Key identifies one metric fact. WindowLabel is empty for metrics that are
// not windowed (coverage, span).
type Key struct {
	EntityType  EntityType
	EntityID    string
	DayType     service.DayType
	WindowLabel string
	Metric      string
}

// Value is a metric value that may be unavailable. Unavailable is a real,
// distinguishable outcome ("no data in this bucket") and is never coerced
// to zero.
type Value struct {
	Float64 float64
	Valid   bool
}

// Some wraps an available value.
func Some(v float64) Value {
	return Value{Float64: v, Valid: true}
}

// Unavailable is the "no data" sentinel.
func Unavailable() Value {
	return Value{}
}

// Fact is one output record.
type Fact struct {
	Key
	Value Value
}

// ConflictError reports two computations claiming the same key with
// differing values. This is an internal invariant violation, not a normal
// runtime condition.
type ConflictError struct {
	Key Key
	Old Value
	New Value
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("aggregation conflict on %+v: %v != %v", e.Key, e.Old, e.New)
}

// Collection accumulates facts from concurrently running engines. Writers
// touch disjoint keys by construction; the mutex only guards the map itself.
type Collection struct {
	mu    sync.Mutex
	facts map[Key]Value
}

func NewCollection() *Collection {
	return &Collection{facts: make(map[Key]Value)}
}

// Put records a fact. Re-recording an identical value is tolerated;
// differing values for one key indicate an upstream bug and fail the run.
func (c *Collection) Put(key Key, value Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.facts[key]; ok && old != value {
		return &ConflictError{Key: key, Old: old, New: value}
	}
	c.facts[key] = value
	return nil
}

// Len returns the number of facts recorded.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.facts)
}

// Facts returns all facts in deterministic order: entity-type, entity-id,
// day-type, window, metric.
func (c *Collection) Facts() []Fact {
	c.mu.Lock()
	defer c.mu.Unlock()

	facts := make([]Fact, 0, len(c.facts))
	for k, v := range c.facts {
		facts = append(facts, Fact{Key: k, Value: v})
	}
	sort.Slice(facts, func(i, j int) bool {
		a, b := facts[i].Key, facts[j].Key
		if a.EntityType != b.EntityType {
			return a.EntityType < b.EntityType
		}
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		if a.DayType != b.DayType {
			return a.DayType < b.DayType
		}
		if a.WindowLabel != b.WindowLabel {
			return a.WindowLabel < b.WindowLabel
		}
		return a.Metric < b.Metric
	})
	return facts
}
