package config

import (
	"github.com/felixgeelhaar/mutaflow/domain/config"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
)

// PolicyFile is the on-disk layout of a policy tables file.
type PolicyFile struct {
	// Options tune the built-in tables. When absent, the caller's defaults apply.
	Options *policy.Options `yaml:"options,omitempty" json:"options,omitempty"`

	// Ordinary replaces the built-in ordinary table.
	Ordinary *policy.Policy `yaml:"ordinary,omitempty" json:"ordinary,omitempty"`

	// Strategic replaces the built-in strategic table.
	Strategic *policy.Policy `yaml:"strategic,omitempty" json:"strategic,omitempty"`
}

// LoadPolicyFile reads and validates the policy set stored at path.
// defaults supplies the options when the file sets none.
func (l *Loader) LoadPolicyFile(path string, defaults policy.Options) (*policy.Set, error) {
	data, format, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return l.LoadPolicyBytes(data, format, defaults)
}

// LoadPolicyBytes decodes and validates a policy set.
func (l *Loader) LoadPolicyBytes(data []byte, format Format, defaults policy.Options) (*policy.Set, error) {
	data, err := l.expand(data)
	if err != nil {
		return nil, err
	}

	var file PolicyFile
	if err := decode(data, format, &file); err != nil {
		return nil, err
	}

	pc := config.PoliciesConfig{
		Options:   defaults,
		Ordinary:  file.Ordinary,
		Strategic: file.Strategic,
	}
	if file.Options != nil {
		pc.Options = *file.Options
	}

	set := pc.Set()
	if errs := config.ValidatePolicySet("policies", set); errs.HasErrors() {
		return nil, errs.AsError()
	}
	return set, nil
}

// PolicySet resolves the policy set a configuration describes, reading the
// policy file when one is configured.
func (l *Loader) PolicySet(cfg *config.ServiceConfig) (*policy.Set, error) {
	if cfg.Policies.File != "" {
		return l.LoadPolicyFile(cfg.Policies.File, cfg.Policies.Options)
	}
	set := cfg.Policies.Set()
	if errs := config.ValidatePolicySet("policies", set); errs.HasErrors() {
		return nil, errs.AsError()
	}
	return set, nil
}
