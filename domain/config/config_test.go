package config

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/status"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()

	if cfg.Queue.RefreshInterval != 30*time.Second {
		t.Errorf("Queue.RefreshInterval = %v, want 30s", cfg.Queue.RefreshInterval)
	}
	if cfg.Storage.Backend != "memory" || cfg.Storage.Events.Backend != "memory" || cfg.Lock.Backend != "memory" {
		t.Errorf("default backends = %s/%s/%s", cfg.Storage.Backend, cfg.Storage.Events.Backend, cfg.Lock.Backend)
	}
	if !cfg.Policies.Options.AdvisoryRegionalRejection || cfg.Policies.Options.AdvisoryCommitteeRejection {
		t.Errorf("Policies.Options = %+v", cfg.Policies.Options)
	}
	if errs := NewValidator().Validate(cfg); errs.HasErrors() {
		t.Errorf("Default() does not validate: %v", errs)
	}
}

func TestPoliciesConfig_Set(t *testing.T) {
	t.Parallel()

	custom := policy.Standard("fast-track", policy.Options{})
	custom.Stages[0].Entry = []status.Status{status.Submitted}

	cfg := PoliciesConfig{Options: policy.DefaultOptions(), Strategic: custom}
	set := cfg.Set()

	if set.Ordinary == nil || set.Ordinary.Name != "ordinary" {
		t.Errorf("Ordinary = %+v", set.Ordinary)
	}
	if set.Strategic.Name != "fast-track" {
		t.Errorf("Strategic.Name = %s, want fast-track", set.Strategic.Name)
	}
	if set.Strategic == custom {
		t.Error("Set() should clone configured tables")
	}
	if set.Strategic.CanAct(identity.RoleCVR, status.RegionalUnfavorable) {
		t.Error("strategic table should be strict")
	}
}
