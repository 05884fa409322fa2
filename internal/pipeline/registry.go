package pipeline

import (
	"context"
	"fmt"

	"github.com/angelmondragon/shopdw/pkg/enums"
)

// Stage names in load order.
const (
	StageEnsureSchema = "ensure_schema"
	StageDimDate      = "dim_date"
	StageDimProduct   = "dim_product"
	StageDimStore     = "dim_store"
	StageDimCustomer  = "dim_customer"
	StageFactSales    = "fact_sales"
	StageFactCart     = "fact_cart"
)

// Report counts the rows a stage handled by outcome.
type Report map[enums.RowOutcome]int

// Stage is one step of a warehouse load. Each stage commits its own work.
type Stage interface {
	Name() string
	Run(ctx context.Context) (Report, error)
}

// Registry tracks stages in execution order.
type Registry struct {
	stages []Stage
}

// NewRegistry builds a registry preloaded with the provided stages.
func NewRegistry(stages ...Stage) *Registry {
	registry := &Registry{}
	for _, stage := range stages {
		registry.Register(stage)
	}
	return registry
}

// Register appends a stage. Nil stages are ignored.
func (r *Registry) Register(stage Stage) {
	if stage == nil {
		return
	}
	r.stages = append(r.stages, stage)
}

// Stages returns the registered stages in the order they were added.
func (r *Registry) Stages() []Stage {
	stages := make([]Stage, len(r.stages))
	copy(stages, r.stages)
	return stages
}

// Names lists the stage names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.stages))
	for i, stage := range r.stages {
		names[i] = stage.Name()
	}
	return names
}

func (r *Registry) validate() error {
	seen := map[string]struct{}{}
	for _, stage := range r.stages {
		name := stage.Name()
		if name == "" {
			return fmt.Errorf("stage name required")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate stage %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
