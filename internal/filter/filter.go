// Package filter evaluates an optional CEL expression against canonical
// events on the ingest path. Events the expression rejects are dropped before
// the store write; evaluation failures keep the event (fail-open).
package filter

import (
	"log"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/platformbuilds/apitel/internal/model"
)

type Filter struct {
	expr string
	prg  cel.Program
}

// New compiles the expression. An empty expression means "keep everything".
// A broken expression degrades to pass-through rather than rejecting traffic.
//
// Available variables:
//
//	source_system    string   ("Salesforce" | "MuleSoft")
//	event_category   string
//	endpoint         string
//	status_code      int      (0 when absent)
//	response_time_ms double   (-1.0 when absent)
//	is_error         bool
//	ts_unix          int
//	now_unix         int
//	raw              dyn      (original payload fields)
func New(expr string) *Filter {
	if expr == "" {
		return &Filter{}
	}
	env, err := cel.NewEnv(
		cel.Variable("source_system", cel.StringType),
		cel.Variable("event_category", cel.StringType),
		cel.Variable("endpoint", cel.StringType),
		cel.Variable("status_code", cel.IntType),
		cel.Variable("response_time_ms", cel.DoubleType),
		cel.Variable("is_error", cel.BoolType),
		cel.Variable("ts_unix", cel.IntType),
		cel.Variable("now_unix", cel.IntType),
		cel.Variable("raw", cel.DynType),
	)
	if err != nil {
		log.Printf("[filter] cel env init error: %v; defaulting to pass-through", err)
		return &Filter{expr: expr}
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		log.Printf("[filter] cel compile error for expr %q: %v; defaulting to pass-through", expr, iss.Err())
		return &Filter{expr: expr}
	}
	prg, err := env.Program(ast)
	if err != nil {
		log.Printf("[filter] cel program error: %v; defaulting to pass-through", err)
		return &Filter{expr: expr}
	}
	return &Filter{expr: expr, prg: prg}
}

// Keep reports whether the event should continue down the ingest path.
func (f *Filter) Keep(ev model.CanonicalEvent) bool {
	if f == nil || f.prg == nil {
		return true
	}
	status := 0
	if ev.StatusCode != nil {
		status = *ev.StatusCode
	}
	rt := -1.0
	if ev.ResponseTimeMs != nil {
		rt = *ev.ResponseTimeMs
	}
	vars := map[string]any{
		"source_system":    string(ev.SourceSystem),
		"event_category":   string(ev.EventCategory),
		"endpoint":         ev.Endpoint,
		"status_code":      status,
		"response_time_ms": rt,
		"is_error":         ev.IsError,
		"ts_unix":          ev.Timestamp.Unix(),
		"now_unix":         time.Now().Unix(),
		"raw":              ev.RawPayload,
	}
	out, _, err := f.prg.Eval(vars)
	if err != nil {
		return true
	}
	if b, ok := out.Value().(bool); ok {
		return b
	}
	return true
}
