// Package transform implements the staged transform pipeline: ingress
// transforms mutate the provider request body before the upstream call,
// provider transforms repair the raw response body, egress transforms adjust
// the UIR response before rendering.
package transform

import (
	"context"
	"log/slog"
	"sort"

	"github.com/modelrelay/modelrelay/pkg/uir"
)

// Stage names where in the pipeline a transform runs.
type Stage string

const (
	StageIngress  Stage = "ingress"
	StageProvider Stage = "provider"
	StageEgress   Stage = "egress"
)

// Context is the mutable view a transform operates on. Body is set during
// ingress, Provider during the provider stage, Response during egress.
type Context struct {
	Ctx     context.Context
	Request *uir.Request

	// Body is the provider-native request body about to be sent.
	Body map[string]any

	// Provider is the raw upstream response.
	Provider *uir.ProviderResponse

	// Response is the converted UIR response.
	Response *uir.Response

	// ProviderFormat is the wire dialect of the selected provider adapter.
	ProviderFormat string

	Logger *slog.Logger
}

// Transform is one pipeline step. Transforms at the same stage run in
// ascending priority order; ties keep registration order.
type Transform interface {
	Name() string
	Stage() Stage
	Priority() int
	Applies(tc *Context) bool
	Transform(tc *Context) error
}

// Registry holds the transform lists per stage. Immutable once built.
type Registry struct {
	stages map[Stage][]Transform
}

func NewRegistry(transforms ...Transform) *Registry {
	r := &Registry{stages: make(map[Stage][]Transform)}
	for _, t := range transforms {
		r.stages[t.Stage()] = append(r.stages[t.Stage()], t)
	}
	for stage := range r.stages {
		list := r.stages[stage]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() < list[j].Priority()
		})
	}
	return r
}

// Run executes every applicable transform of a stage in order. The first
// transform error aborts the attempt.
func (r *Registry) Run(stage Stage, tc *Context) error {
	for _, t := range r.stages[stage] {
		if !t.Applies(tc) {
			continue
		}
		if err := t.Transform(tc); err != nil {
			tc.Logger.Error("transform failed",
				"transform", t.Name(),
				"stage", string(stage),
				"error", err,
			)
			return err
		}
	}
	return nil
}
