package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefinitionFromJSON parses a Definition from JSON.
func DefinitionFromJSON(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition from JSON: %w", err)
	}
	if err := ValidateDefinition(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// DefinitionFromYAML parses a Definition from YAML.
func DefinitionFromYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition from YAML: %w", err)
	}
	if err := ValidateDefinition(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinitionFromFile loads a Definition from a .json, .yaml, or .yml
// file based on its extension.
func LoadDefinitionFromFile(filename string) (*Definition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	switch ext := filepath.Ext(filename); ext {
	case ".json":
		return DefinitionFromJSON(data)
	case ".yaml", ".yml":
		return DefinitionFromYAML(data)
	default:
		return nil, fmt.Errorf("unsupported definition file extension: %s", ext)
	}
}

// ToJSON renders the definition as indented JSON.
func (d *Definition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal definition to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML renders the definition as YAML.
func (d *Definition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal definition to YAML: %w", err)
	}
	return string(data), nil
}

// ValidateDefinition performs structural checks on a declarative
// definition: names and kinds present, task IDs unique, dependencies
// declared by ID only. Graph-level validation (cycles, dangling targets)
// stays with Engine.Validate.
func ValidateDefinition(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("definition has no name")
	}
	switch def.Mode {
	case "", ModeSequential, ModeParallel:
	default:
		return fmt.Errorf("unknown execution mode: %s", def.Mode)
	}
	switch def.Strategy {
	case "", StrategyRetry, StrategyContinue, StrategyAbort, StrategyRollback:
	default:
		return fmt.Errorf("unknown error strategy: %s", def.Strategy)
	}

	seen := make(map[string]bool, len(def.Tasks))
	for i, td := range def.Tasks {
		if td.Name == "" {
			return fmt.Errorf("task %d has no name", i)
		}
		if td.Kind == "" {
			return fmt.Errorf("task %q has no kind", td.Name)
		}
		if td.ID != "" {
			if seen[td.ID] {
				return fmt.Errorf("duplicate task id: %s", td.ID)
			}
			seen[td.ID] = true
		}
		if td.MaxRetries < 0 {
			return fmt.Errorf("task %q has negative max_retries", td.Name)
		}
		for _, dep := range td.DependsOn {
			if dep == "" {
				return fmt.Errorf("task %q has an empty dependency id", td.Name)
			}
		}
	}
	return nil
}
