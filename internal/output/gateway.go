// Package output implements the pipeline's output gateway: it serializes each
// finished record into an archive entry, triggers the deferred write phase of
// every result, and at the end of a run persists the archive and the HTML
// report.
package output

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kingrea/helix/internal/archive"
	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/module"
	"github.com/kingrea/helix/internal/pipeline"
	"github.com/kingrea/helix/internal/record"
)

// Gateway implements pipeline.Gateway.
type Gateway struct {
	registry *module.Registry
	html     *HTML
	logger   *zap.Logger
}

var _ pipeline.Gateway = (*Gateway)(nil)

// Option customizes the gateway.
type Option func(*Gateway)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithHTML replaces the HTML plugin.
func WithHTML(html *HTML) Option {
	return func(g *Gateway) {
		if html != nil {
			g.html = html
		}
	}
}

// New builds a gateway. The registry supplies module versions for archive
// entries.
func New(registry *module.Registry, opts ...Option) *Gateway {
	g := &Gateway{
		registry: registry,
		html:     NewHTML(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Checkers returns the output plugins validated before a run.
func (g *Gateway) Checkers() []module.Checker {
	return []module.Checker{g.html}
}

// Emit serializes every result into the record's archive entry, then calls
// each result's WriteOutputs exactly once. Write failures do not drop the
// entry: results stay reusable even when their files could not be written.
func (g *Gateway) Emit(ctx context.Context, rec *record.Record, results []module.Result, cfg config.Config) (archive.Entry, error) {
	entry, err := archive.NewEntry(rec)
	if err != nil {
		return archive.Entry{}, err
	}
	var errs []error
	written := make([]module.Result, 0, len(results))
	for _, res := range results {
		id := res.ModuleID()
		payload, err := res.Serialize()
		if err != nil {
			errs = append(errs, module.WriteError(id, rec.ID, fmt.Errorf("serialize: %w", err)))
			continue
		}
		entry.SetModule(id, g.version(id), payload)
		written = append(written, res)
	}
	for _, res := range written {
		if err := ctx.Err(); err != nil {
			return entry, err
		}
		id := res.ModuleID()
		if err := res.WriteOutputs(rec, cfg); err != nil {
			if !errors.Is(err, module.ErrWrite) {
				err = module.WriteError(id, rec.ID, err)
			}
			errs = append(errs, err)
			continue
		}
		g.logger.Debug("outputs written", zap.String("record", rec.ID), zap.String("module", id))
	}
	return entry, errors.Join(errs...)
}

// Finalize writes the archive and, when enabled, the HTML report.
func (g *Gateway) Finalize(ctx context.Context, arc *archive.Archive, records []*record.Record, report pipeline.Report, cfg config.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := cfg.ArchivePath()
	if err := archive.Save(path, arc); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	g.logger.Info("archive written", zap.String("path", path), zap.Int("records", len(arc.Records)))

	if !g.html.IsEnabled(cfg) {
		return nil
	}
	if err := g.html.Write(arc, records, report, cfg); err != nil {
		return module.WriteError(HTMLID, "", err)
	}
	g.logger.Info("html report written", zap.String("dir", cfg.OutputDir))
	return nil
}

func (g *Gateway) version(moduleID string) string {
	if g.registry == nil {
		return ""
	}
	if m, ok := g.registry.Get(moduleID); ok {
		return m.Info().Version
	}
	return ""
}
