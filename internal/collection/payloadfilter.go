package collection

import (
	"strings"
)

// Op is one payload-predicate comparison (spec §4.6).
type Op string

const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpIn         Op = "in"
	OpRange      Op = "range"
	OpExists     Op = "exists"
	OpStartsWith Op = "startsWith"
)

// Predicate tests one JSON-pointer path within a payload.
type Predicate struct {
	Path   string
	Op     Op
	Value  any
	Values []any
	Min    any
	Max    any
}

// Filter is a conjunction of predicates; a payload matches only if every
// predicate matches.
type Filter struct {
	Predicates []Predicate
}

// Matches evaluates every predicate against payload, short-circuiting on
// the first failure.
func (f Filter) Matches(payload map[string]any) bool {
	for _, p := range f.Predicates {
		if !p.matches(payload) {
			return false
		}
	}
	return true
}

func (p Predicate) matches(payload map[string]any) bool {
	val, exists := resolvePath(payload, p.Path)
	switch p.Op {
	case OpExists:
		return exists
	case OpEq:
		return exists && equalValue(val, p.Value)
	case OpNe:
		return !exists || !equalValue(val, p.Value)
	case OpIn:
		if !exists {
			return false
		}
		for _, v := range p.Values {
			if equalValue(val, v) {
				return true
			}
		}
		return false
	case OpStartsWith:
		s, ok := val.(string)
		prefix, okPrefix := p.Value.(string)
		return exists && ok && okPrefix && strings.HasPrefix(s, prefix)
	case OpRange:
		if !exists {
			return false
		}
		return inRange(val, p.Min, p.Max)
	default:
		return false
	}
}

// resolvePath walks a "/a/b/c" JSON-pointer-style path (a leading slash
// is optional) through nested maps.
func resolvePath(payload map[string]any, path string) (any, bool) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, "/")

	var cur any = payload
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func equalValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func inRange(v, min, max any) bool {
	f, ok := toFloat(v)
	if !ok {
		return false
	}
	if min != nil {
		if mn, ok := toFloat(min); ok && f < mn {
			return false
		}
	}
	if max != nil {
		if mx, ok := toFloat(max); ok && f > mx {
			return false
		}
	}
	return true
}
