package module

import "github.com/kingrea/helix/internal/config"

// Base provides common plumbing for modules (identity + option declarations).
// Embedders override the checks they need.
type Base struct {
	info    Info
	options config.OptionSet
}

// NewBase seeds the helper with module info.
func NewBase(info Info) Base {
	return Base{info: info, options: config.OptionSet{Group: info.ID}}
}

// SetOptions declares the options the module registers on the command line.
func (b *Base) SetOptions(opts ...config.Option) {
	b.options = config.OptionSet{Group: b.info.ID, Options: append([]config.Option{}, opts...)}
}

// Info implements Checker.Info.
func (b *Base) Info() Info {
	return b.info
}

// Options implements Checker.Options.
func (b *Base) Options() config.OptionSet {
	return config.OptionSet{Group: b.options.Group, Options: append([]config.Option{}, b.options.Options...)}
}

// CheckReadiness implements Checker.CheckReadiness.
func (b *Base) CheckReadiness(config.Config) []error {
	return nil
}

// CheckOptions implements Checker.CheckOptions.
func (b *Base) CheckOptions(config.Config) []error {
	return nil
}

// IsEnabled implements Checker.IsEnabled.
func (b *Base) IsEnabled(config.Config) bool {
	return true
}
