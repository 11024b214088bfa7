package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/slushpile/gauntlet/internal/types"
)

// Definition is a tournament definition loaded from YAML: what to generate,
// how many winners to keep, and how the panel judges.
type Definition struct {
	// Name labels the tournament in status output
	Name string `yaml:"name"`

	// Prompt is the generation prompt used to seed the candidate pool
	Prompt string `yaml:"prompt"`

	// TargetK is the number of winners the tournament reduces to
	TargetK int `yaml:"target_k"`

	// Criteria are the weighted judging criteria; weights must sum to 1.0
	Criteria []types.Criterion `yaml:"criteria"`

	// Personas are the judge panel members
	Personas []types.Persona `yaml:"personas"`
}

// LoadDefinition loads a tournament definition from a YAML file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definition file: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid definition %s: %w", path, err)
	}

	return &def, nil
}

// Validate checks the definition is complete enough to run a tournament.
func (d *Definition) Validate() error {
	if d.TargetK < 1 {
		return fmt.Errorf("target_k must be at least 1 (got %d)", d.TargetK)
	}
	if err := types.ValidateCriteria(d.Criteria); err != nil {
		return err
	}
	if err := types.ValidatePersonas(d.Personas); err != nil {
		return err
	}
	return nil
}

// DefaultDefinition returns a starter definition suitable for `gauntlet init`.
func DefaultDefinition() *Definition {
	return &Definition{
		Name:    "untitled",
		Prompt:  "Premises for a near-future short story about ordinary technology going slightly wrong.",
		TargetK: 2,
		Criteria: []types.Criterion{
			{Name: "originality", Weight: 0.35, Guidance: "Novelty of the core premise; penalize familiar setups."},
			{Name: "coherence", Weight: 0.35, Guidance: "Internal logic; do the pieces fit together?"},
			{Name: "potential", Weight: 0.30, Guidance: "Room to grow into a full treatment."},
		},
		Personas: []types.Persona{
			{Name: "structural critic", Brief: "You care about internal logic and construction. You distrust vibes."},
			{Name: "audience advocate", Brief: "You judge what a reader would actually want to keep reading."},
			{Name: "contrarian", Brief: "You look for the option everyone else undervalues."},
		},
	}
}

// SaveDefaultDefinition writes the starter definition to a file.
func SaveDefaultDefinition(path string) error {
	def := DefaultDefinition()

	data, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshaling definition: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing definition file: %w", err)
	}

	return nil
}
