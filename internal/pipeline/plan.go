package pipeline

import (
	"fmt"

	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/module"
)

// Step is one module in the fixed execution order.
type Step struct {
	Module  module.Module
	Info    module.Info
	Enabled bool
}

// Plan is the module order computed once per run. Cached and fresh results
// follow the same order.
type Plan struct {
	steps []Step
}

// NewPlan orders every registered module so dependencies come first, using
// registration order to break ties. Enablement is evaluated once against cfg.
func NewPlan(registry *module.Registry, cfg config.Config) (*Plan, []error) {
	if registry == nil {
		return nil, []error{fmt.Errorf("pipeline: module registry is required")}
	}
	modules := registry.Modules()
	byID := make(map[string]module.Module, len(modules))
	for _, m := range modules {
		byID[m.Info().ID] = m
	}

	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(modules))
	ordered := make([]Step, 0, len(modules))
	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch marks[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("pipeline: dependency cycle %v", append(path, id))
		}
		m, ok := byID[id]
		if !ok {
			return fmt.Errorf("pipeline: %s depends on unknown module %s", path[len(path)-1], id)
		}
		marks[id] = visiting
		info := m.Info()
		for _, dep := range info.DependsOn {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		marks[id] = done
		ordered = append(ordered, Step{Module: m, Info: info, Enabled: m.IsEnabled(cfg)})
		return nil
	}
	for _, m := range modules {
		if err := visit(m.Info().ID, nil); err != nil {
			return nil, []error{err}
		}
	}

	plan := &Plan{steps: ordered}
	var errs []error
	for _, step := range plan.steps {
		if !step.Enabled {
			continue
		}
		for _, dep := range step.Info.DependsOn {
			if depStep, _ := plan.Step(dep); !depStep.Enabled {
				errs = append(errs, module.OptionError(step.Info.ID, fmt.Errorf("requires %s, which is disabled", dep)))
			}
		}
	}
	return plan, errs
}

// Steps returns every module in execution order.
func (p *Plan) Steps() []Step {
	return append([]Step{}, p.steps...)
}

// Enabled returns the enabled modules in execution order.
func (p *Plan) Enabled() []Step {
	out := make([]Step, 0, len(p.steps))
	for _, step := range p.steps {
		if step.Enabled {
			out = append(out, step)
		}
	}
	return out
}

// Step looks up a module's step by ID.
func (p *Plan) Step(id string) (Step, bool) {
	for _, step := range p.steps {
		if step.Info.ID == id {
			return step, true
		}
	}
	return Step{}, false
}

// EnabledIDs returns the IDs of enabled modules in execution order.
func (p *Plan) EnabledIDs() []string {
	ids := make([]string, 0, len(p.steps))
	for _, step := range p.Enabled() {
		ids = append(ids, step.Info.ID)
	}
	return ids
}
