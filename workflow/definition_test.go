package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: nightly-report
description: generate and ship the nightly report
mode: parallel
strategy: retry
max_parallel: 3
tasks:
  - id: extract
    name: extract
    kind: sql.query
    params:
      query: "select * from events"
  - id: transform
    name: transform
    kind: report.render
    depends_on: [extract]
    max_retries: 2
  - id: notify
    name: notify
    kind: mail.send
    depends_on: [transform]
    priority: 5
`

func TestDefinitionFromYAML(t *testing.T) {
	t.Parallel()
	def, err := DefinitionFromYAML([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "nightly-report", def.Name)
	assert.Equal(t, ModeParallel, def.Mode)
	assert.Equal(t, StrategyRetry, def.Strategy)
	assert.Equal(t, 3, def.MaxParallel)
	require.Len(t, def.Tasks, 3)
	assert.Equal(t, []string{"extract"}, def.Tasks[1].DependsOn)
	assert.Equal(t, 2, def.Tasks[1].MaxRetries)
	assert.Equal(t, 5, def.Tasks[2].Priority)
	assert.Equal(t, "select * from events", def.Tasks[0].Params["query"])
}

func TestDefinitionFromJSON(t *testing.T) {
	t.Parallel()
	data := []byte(`{
		"name": "deploy",
		"mode": "sequential",
		"strategy": "rollback",
		"tasks": [
			{"id": "build", "name": "build", "kind": "shell"},
			{"id": "push", "name": "push", "kind": "shell", "depends_on": ["build"]}
		]
	}`)
	def, err := DefinitionFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, StrategyRollback, def.Strategy)
	require.Len(t, def.Tasks, 2)
}

func TestDefinitionFromJSON_Invalid(t *testing.T) {
	t.Parallel()
	_, err := DefinitionFromJSON([]byte(`{"name": `))
	assert.Error(t, err)
}

func TestLoadDefinitionFromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	path := filepath.Join(dir, "def.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	def, err := LoadDefinitionFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly-report", def.Name)

	_, err = LoadDefinitionFromFile(filepath.Join(dir, "def.toml"))
	assert.Error(t, err)

	_, err = LoadDefinitionFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDefinitionRoundTrip(t *testing.T) {
	t.Parallel()
	def := &Definition{
		Name:     "rt",
		Mode:     ModeParallel,
		Strategy: StrategyContinue,
		Timeout:  5 * time.Minute,
		Tasks: []TaskDefinition{
			{ID: "a", Name: "a", Kind: "noop", AllowFailure: true},
		},
	}

	out, err := def.ToYAML()
	require.NoError(t, err)
	back, err := DefinitionFromYAML([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, def.Name, back.Name)
	assert.Equal(t, def.Tasks, back.Tasks)

	jsonOut, err := def.ToJSON()
	require.NoError(t, err)
	back, err = DefinitionFromJSON([]byte(jsonOut))
	require.NoError(t, err)
	assert.Equal(t, def.Strategy, back.Strategy)
}

func TestValidateDefinition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		def     Definition
		wantErr string
	}{
		{
			name:    "missing name",
			def:     Definition{},
			wantErr: "no name",
		},
		{
			name:    "bad mode",
			def:     Definition{Name: "x", Mode: "warp"},
			wantErr: "unknown execution mode",
		},
		{
			name:    "bad strategy",
			def:     Definition{Name: "x", Strategy: "panic"},
			wantErr: "unknown error strategy",
		},
		{
			name: "task without name",
			def: Definition{Name: "x", Tasks: []TaskDefinition{
				{Kind: "noop"},
			}},
			wantErr: "has no name",
		},
		{
			name: "task without kind",
			def: Definition{Name: "x", Tasks: []TaskDefinition{
				{Name: "t"},
			}},
			wantErr: "has no kind",
		},
		{
			name: "duplicate ids",
			def: Definition{Name: "x", Tasks: []TaskDefinition{
				{ID: "t", Name: "t", Kind: "noop"},
				{ID: "t", Name: "t2", Kind: "noop"},
			}},
			wantErr: "duplicate task id",
		},
		{
			name: "negative retries",
			def: Definition{Name: "x", Tasks: []TaskDefinition{
				{Name: "t", Kind: "noop", MaxRetries: -1},
			}},
			wantErr: "negative max_retries",
		},
		{
			name: "empty dependency id",
			def: Definition{Name: "x", Tasks: []TaskDefinition{
				{Name: "t", Kind: "noop", DependsOn: []string{""}},
			}},
			wantErr: "empty dependency id",
		},
		{
			name: "valid",
			def: Definition{Name: "x", Mode: ModeParallel, Strategy: StrategyRetry, Tasks: []TaskDefinition{
				{ID: "a", Name: "a", Kind: "noop"},
				{ID: "b", Name: "b", Kind: "noop", DependsOn: []string{"a"}},
			}},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateDefinition(&tc.def)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
