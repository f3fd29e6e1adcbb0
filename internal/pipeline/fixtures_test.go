package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kingrea/helix/internal/archive"
	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/module"
	"github.com/kingrea/helix/internal/record"
)

// stepModule records how often it computes and regenerates. Its payload
// names the prior results it saw, so resumed runs can be compared with fresh
// ones.
type stepModule struct {
	module.Base
	disabled   bool
	failOn     string
	notReady   error
	onRun      func()
	runs       atomic.Int32
	regenerate atomic.Int32
}

func newStep(id, version string, deps ...string) *stepModule {
	return &stepModule{Base: module.NewBase(module.Info{ID: id, Name: id, Version: version, DependsOn: deps})}
}

func (m *stepModule) IsEnabled(config.Config) bool { return !m.disabled }

func (m *stepModule) CheckReadiness(config.Config) []error {
	if m.notReady != nil {
		return []error{m.notReady}
	}
	return nil
}

func (m *stepModule) RunFresh(ctx context.Context, rec *record.Record, prior module.Prior, _ config.Config) (module.Result, error) {
	m.runs.Add(1)
	if m.onRun != nil {
		m.onRun()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec.ID == m.failOn {
		return nil, fmt.Errorf("boom on %s", rec.ID)
	}
	seen := make([]string, 0, len(prior))
	for id := range prior {
		seen = append(seen, id)
	}
	sort.Strings(seen)
	return &stepResult{Module: m.Info().ID, Record: rec.ID, Value: m.Info().ID + "<" + strings.Join(seen, ",")}, nil
}

func (m *stepModule) Regenerate(payload json.RawMessage, rec *record.Record, _ config.Config) (module.Result, error) {
	m.regenerate.Add(1)
	var res stepResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, module.MalformedPayload(m.Info().ID, rec.ID, err)
	}
	if res.Record != rec.ID || !strings.HasPrefix(res.Value, m.Info().ID+"<") {
		return nil, module.MalformedPayload(m.Info().ID, rec.ID, fmt.Errorf("unexpected payload %q", res.Value))
	}
	res.Module = m.Info().ID
	return &res, nil
}

type stepResult struct {
	Module string `json:"-"`
	Record string `json:"record"`
	Value  string `json:"value"`
}

func (r *stepResult) ModuleID() string { return r.Module }
func (r *stepResult) Serialize() (json.RawMessage, error) { return json.Marshal(r) }
func (r *stepResult) AddToRecord(*record.Record) error { return nil }
func (r *stepResult) WriteOutputs(*record.Record, config.Config) error { return nil }

// memGateway saves the archive like the real gateway but writes no outputs.
type memGateway struct {
	registry *module.Registry
	checkers []module.Checker

	mu        sync.Mutex
	emitted   map[string][]string
	finalized int
}

func newGateway(reg *module.Registry) *memGateway {
	return &memGateway{registry: reg, emitted: map[string][]string{}}
}

func (g *memGateway) Checkers() []module.Checker { return g.checkers }

func (g *memGateway) Emit(_ context.Context, rec *record.Record, results []module.Result, _ config.Config) (archive.Entry, error) {
	entry, err := archive.NewEntry(rec)
	if err != nil {
		return archive.Entry{}, err
	}
	ids := make([]string, 0, len(results))
	for _, res := range results {
		payload, err := res.Serialize()
		if err != nil {
			return archive.Entry{}, err
		}
		m, _ := g.registry.Get(res.ModuleID())
		entry.SetModule(res.ModuleID(), m.Info().Version, payload)
		ids = append(ids, res.ModuleID())
	}
	g.mu.Lock()
	g.emitted[rec.ID] = ids
	g.mu.Unlock()
	return entry, nil
}

func (g *memGateway) Finalize(_ context.Context, arc *archive.Archive, _ []*record.Record, _ Report, cfg config.Config) error {
	g.mu.Lock()
	g.finalized++
	g.mu.Unlock()
	return archive.Save(cfg.ArchivePath(), arc)
}

func registry(t *testing.T, mods ...module.Module) *module.Registry {
	t.Helper()
	reg := module.NewRegistry()
	for _, m := range mods {
		require.NoError(t, reg.Register(m))
	}
	return reg
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Build(config.ProjectConfig{Version: 1}, nil, nil)
	require.NoError(t, err)
	cfg.OutputDir = t.TempDir()
	cfg.CPUs = 2
	return cfg
}

func testRecords() []*record.Record {
	return []*record.Record{
		{ID: "r2", Sequence: "GGCCAATT"},
		{ID: "r1", Sequence: "ACGTACGT"},
	}
}
