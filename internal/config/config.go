package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dealflow/internal/domain"
)

// Config models dealflow.yml: the stage catalog seeded into new pipelines,
// risk thresholds, the close-reason catalog and outbound webhooks.
type Config struct {
	Pipeline struct {
		ID    string `yaml:"id"`
		Name  string `yaml:"name"`
		Owner string `yaml:"owner"`
	} `yaml:"pipeline"`
	Stages []StageDef `yaml:"stages"`
	Risk   struct {
		StagnationDays int     `yaml:"stagnation_days"`
		HighValueFloor float64 `yaml:"high_value_floor"`
	} `yaml:"risk"`
	Reasons struct {
		Won  []string `yaml:"won"`
		Lost []string `yaml:"lost"`
	} `yaml:"reasons"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type StageDef struct {
	Name  string           `yaml:"name"`
	Color string           `yaml:"color"`
	Role  domain.StageRole `yaml:"role"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with df pipeline config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Pipeline.ID == "" {
		return fmt.Errorf("config.pipeline.id is required")
	}
	if len(c.Stages) == 0 {
		return fmt.Errorf("config.stages must define at least one stage")
	}
	roleCount := map[domain.StageRole]int{}
	for i, s := range c.Stages {
		if s.Name == "" {
			return fmt.Errorf("config.stages[%d] has empty name", i)
		}
		if s.Color != "" && !domain.ValidStageColor(s.Color) {
			return fmt.Errorf("stage %s has unknown color %s", s.Name, s.Color)
		}
		switch s.Role {
		case "", domain.RoleNormal, domain.RoleProposal, domain.RoleWin, domain.RoleLoss:
		default:
			return fmt.Errorf("stage %s has unknown role %s", s.Name, s.Role)
		}
		if s.Role != "" && s.Role != domain.RoleNormal {
			roleCount[s.Role]++
		}
	}
	for _, role := range []domain.StageRole{domain.RoleProposal, domain.RoleWin, domain.RoleLoss} {
		if roleCount[role] > 1 {
			return fmt.Errorf("config.stages defines role %s more than once", role)
		}
	}
	if c.Risk.StagnationDays < 0 {
		return fmt.Errorf("config.risk.stagnation_days must not be negative")
	}
	if c.Risk.HighValueFloor < 0 {
		return fmt.Errorf("config.risk.high_value_floor must not be negative")
	}
	for i, h := range c.Webhooks {
		if h.URL == "" {
			return fmt.Errorf("config.webhooks[%d] has empty url", i)
		}
	}
	return nil
}

// RiskThresholds returns the configured thresholds with defaults applied.
func (c *Config) RiskThresholds() (stagnationDays int, highValueFloor float64) {
	stagnationDays = c.Risk.StagnationDays
	if stagnationDays == 0 {
		stagnationDays = 14
	}
	highValueFloor = c.Risk.HighValueFloor
	if highValueFloor == 0 {
		highValueFloor = 1000
	}
	return stagnationDays, highValueFloor
}

// KnownReason reports whether reason is in the close-reason catalog for the
// given terminal role. An empty catalog accepts any non-empty reason.
func (c *Config) KnownReason(role domain.StageRole, reason string) bool {
	var catalog []string
	switch role {
	case domain.RoleWin:
		catalog = c.Reasons.Won
	case domain.RoleLoss:
		catalog = c.Reasons.Lost
	default:
		return true
	}
	if len(catalog) == 0 {
		return reason != ""
	}
	for _, r := range catalog {
		if r == reason {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "dealflow.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(pipelineID string) string {
	return fmt.Sprintf(defaultTemplate, pipelineID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a pipeline.
func Default(pipelineID string) *Config {
	var cfg Config
	cfg.Pipeline.ID = pipelineID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, pipelineID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `pipeline:
  id: %s
  name: Pipeline de Vendas

stages:
  - name: "Qualificação"
    color: blue
    role: normal
  - name: "Proposta"
    color: amber
    role: proposal
  - name: "Negociação"
    color: orange
    role: normal
  - name: "Ganho"
    color: green
    role: win
  - name: "Perdido"
    color: red
    role: loss

risk:
  stagnation_days: 14
  high_value_floor: 1000

reasons:
  won:
    - best_price
    - best_fit
    - relationship
    - other
  lost:
    - price
    - timing
    - competitor
    - no_budget
    - unresponsive
    - other

webhooks: []
`
