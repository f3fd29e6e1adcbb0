package module

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/record"
)

type stubModule struct {
	Base
}

func newStub(id string, deps ...string) *stubModule {
	return &stubModule{Base: NewBase(Info{ID: id, Name: id, Version: "1", DependsOn: deps})}
}

func (s *stubModule) RunFresh(context.Context, *record.Record, Prior, config.Config) (Result, error) {
	return stubResult{id: s.Info().ID}, nil
}

func (s *stubModule) Regenerate(json.RawMessage, *record.Record, config.Config) (Result, error) {
	return stubResult{id: s.Info().ID}, nil
}

type stubResult struct{ id string }

func (r stubResult) ModuleID() string { return r.id }
func (r stubResult) Serialize() (json.RawMessage, error) { return json.RawMessage(`{}`), nil }
func (r stubResult) AddToRecord(*record.Record) error { return nil }
func (r stubResult) WriteOutputs(*record.Record, config.Config) error { return nil }

func TestInfoValidate(t *testing.T) {
	cases := []struct {
		name string
		info Info
		ok   bool
	}{
		{"valid", Info{ID: "a", Name: "A", Version: "1", OutputDir: "a"}, true},
		{"missing id", Info{Name: "A", Version: "1"}, false},
		{"missing name", Info{ID: "a", Version: "1"}, false},
		{"missing version", Info{ID: "a", Name: "A"}, false},
		{"self dependency", Info{ID: "a", Name: "A", Version: "1", DependsOn: []string{"a"}}, false},
		{"nested output dir", Info{ID: "a", Name: "A", Version: "1", OutputDir: "x/y"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.info.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(newStub("z.first"))
	reg.MustRegister(newStub("a.second"))

	var ids []string
	for _, m := range reg.Modules() {
		ids = append(ids, m.Info().ID)
	}
	assert.Equal(t, []string{"z.first", "a.second"}, ids)
	assert.Equal(t, 2, reg.Len())

	_, ok := reg.Get("a.second")
	assert.True(t, ok)
	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newStub("dup")))
	require.Error(t, reg.Register(newStub("dup")))
	require.Error(t, reg.Register(nil))
	assert.Panics(t, func() { reg.MustRegister(newStub("dup")) })
}

func TestErrorKindsMatch(t *testing.T) {
	cause := fmt.Errorf("unknown cds orf9")
	err := MalformedPayload("helix.modules.smcog_trees", "nisin", cause)

	assert.True(t, errors.Is(err, ErrMalformedPayload))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrExecution))
	assert.Equal(t, "helix.modules.smcog_trees: record nisin: malformed payload: unknown cds orf9", err.Error())

	var merr *Error
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "nisin", merr.Record)

	wrapped := fmt.Errorf("pipeline: %w", ExecutionError("m", "r", nil))
	assert.True(t, errors.Is(wrapped, ErrExecution))
	assert.False(t, errors.Is(cause, ErrExecution))

	assert.Equal(t, "m: invalid option: bad", OptionError("m", errors.New("bad")).Error())
	assert.True(t, errors.Is(ReadinessError("m", nil), ErrReadiness))
	assert.True(t, errors.Is(WriteError("m", "r", cause), ErrWrite))
}

func TestPriorLookup(t *testing.T) {
	prior := Prior{"a": stubResult{id: "a"}}
	res, ok := Lookup[stubResult](prior, "a")
	require.True(t, ok)
	assert.Equal(t, "a", res.ModuleID())

	_, ok = Lookup[stubResult](prior, "b")
	assert.False(t, ok)

	clone := prior.Clone()
	clone["b"] = stubResult{id: "b"}
	_, ok = prior.Get("b")
	assert.False(t, ok)
}

func TestBaseDefaults(t *testing.T) {
	m := newStub("a")
	m.SetOptions(config.Option{Name: "enable-a", Type: config.TypeBool, Default: false})
	cfg := config.Default()
	assert.True(t, m.IsEnabled(cfg))
	assert.Empty(t, m.CheckReadiness(cfg))
	assert.Empty(t, m.CheckOptions(cfg))
	assert.Equal(t, "a", m.Options().Group)
	assert.Len(t, m.Options().Options, 1)
}
