// Package modules assembles the built-in analysis modules in execution order.
package modules

import (
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/module"
	"github.com/kingrea/helix/internal/modules/genefunctions"
	"github.com/kingrea/helix/internal/modules/smcogtrees"
	"github.com/kingrea/helix/internal/modules/summary"
)

// Options tunes the built-in modules.
type Options struct {
	Logger      *zap.Logger
	Clock       func() time.Time
	TreeBuilder smcogtrees.TreeBuilder
}

// Builtins returns a registry holding every built-in module. Registration
// order is the tie-breaker for the execution plan.
func Builtins(opts Options) *module.Registry {
	reg := module.NewRegistry()
	gf := genefunctions.New()
	reg.MustRegister(gf)

	treeOpts := []smcogtrees.Option{
		smcogtrees.WithLogger(opts.Logger),
		smcogtrees.WithReferences(gf.References()),
	}
	if opts.TreeBuilder != nil {
		treeOpts = append(treeOpts, smcogtrees.WithBuilder(opts.TreeBuilder))
	}
	reg.MustRegister(smcogtrees.New(treeOpts...))
	reg.MustRegister(summary.New(summary.WithClock(opts.Clock)))
	return reg
}

// OptionSets lists the option sets of every registered module followed by
// extra sets, such as those of output plugins.
func OptionSets(reg *module.Registry, extra ...config.OptionSet) []config.OptionSet {
	sets := make([]config.OptionSet, 0, reg.Len()+len(extra))
	for _, m := range reg.Modules() {
		sets = append(sets, m.Options())
	}
	return append(sets, extra...)
}
