package config

import (
	"os"
	"path/filepath"
	"testing"

	"dealflow/internal/domain"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default("pipe1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Pipeline.ID != "pipe1" {
		t.Fatalf("pipeline id = %q", cfg.Pipeline.ID)
	}
	if len(cfg.Stages) != 5 {
		t.Fatalf("default has %d stages", len(cfg.Stages))
	}
	roles := map[domain.StageRole]int{}
	for _, s := range cfg.Stages {
		roles[s.Role]++
	}
	if roles[domain.RoleProposal] != 1 || roles[domain.RoleWin] != 1 || roles[domain.RoleLoss] != 1 {
		t.Fatalf("role counts: %v", roles)
	}
}

func TestValidateRejectsDuplicateRoles(t *testing.T) {
	cfg := Default("pipe1")
	cfg.Stages = append(cfg.Stages, StageDef{Name: "Outro Ganho", Role: domain.RoleWin})
	if err := cfg.Validate(); err == nil {
		t.Fatal("duplicate win role accepted")
	}
}

func TestValidateRejectsBadColorAndRole(t *testing.T) {
	cfg := Default("pipe1")
	cfg.Stages[0].Color = "magenta"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown color accepted")
	}
	cfg = Default("pipe1")
	cfg.Stages[0].Role = "boss"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown role accepted")
	}
}

func TestKnownReason(t *testing.T) {
	cfg := Default("pipe1")
	if !cfg.KnownReason(domain.RoleWin, "best_price") {
		t.Fatal("catalog reason rejected")
	}
	if cfg.KnownReason(domain.RoleWin, "made_up") {
		t.Fatal("unknown reason accepted")
	}
	if !cfg.KnownReason(domain.RoleLoss, "no_budget") {
		t.Fatal("loss catalog reason rejected")
	}
	// normal stages never require a catalog reason
	if !cfg.KnownReason(domain.RoleNormal, "") {
		t.Fatal("normal role gated on reason")
	}
	// empty catalog accepts any non-empty reason
	cfg.Reasons.Won = nil
	if !cfg.KnownReason(domain.RoleWin, "whatever") {
		t.Fatal("empty catalog rejected a reason")
	}
	if cfg.KnownReason(domain.RoleWin, "") {
		t.Fatal("empty reason accepted")
	}
}

func TestRiskThresholdDefaults(t *testing.T) {
	var cfg Config
	days, floor := cfg.RiskThresholds()
	if days != 14 || floor != 1000 {
		t.Fatalf("defaults = %d/%v", days, floor)
	}
	cfg.Risk.StagnationDays = 7
	cfg.Risk.HighValueFloor = 500
	days, floor = cfg.RiskThresholds()
	if days != 7 || floor != 500 {
		t.Fatalf("configured = %d/%v", days, floor)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing config: cfg=%v err=%v", cfg, err)
	}
	path := filepath.Join(dir, "dealflow.yml")
	if err := os.WriteFile(path, []byte(GenerateDefault("pipe1")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg == nil || cfg.Pipeline.ID != "pipe1" {
		t.Fatalf("cfg = %+v", cfg)
	}

	if _, err := FromYAML([]byte("pipeline: [")); err == nil {
		t.Fatal("invalid yaml accepted")
	}
}
