package core

// ThresholdConfig carries optional structured threshold settings for a rule.
// Behavioral detectors read the numbers they understand and ignore the rest.
type ThresholdConfig struct {
	Count         int `yaml:"count" json:"count" mapstructure:"count"`
	WindowMinutes int `yaml:"window_minutes" json:"window_minutes" mapstructure:"window_minutes"`
}

// Rule is a configured detection rule. Rules are loaded once at startup and
// immutable for the lifetime of the run. A rule without a pattern is
// behavioral: it is matched by name convention in the behavioral analyzer
// and never evaluated by the pattern engine.
type Rule struct {
	Name          string           `yaml:"-" json:"name" mapstructure:"-"`
	Enabled       bool             `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Severity      Severity         `yaml:"severity" json:"severity" mapstructure:"severity"`
	Pattern       string           `yaml:"pattern" json:"pattern" mapstructure:"pattern"`
	Description   string           `yaml:"description" json:"description" mapstructure:"description"`
	Category      string           `yaml:"category" json:"category" mapstructure:"category"`
	ContextFields []string         `yaml:"context_fields" json:"context_fields" mapstructure:"context_fields"`
	Threshold     *ThresholdConfig `yaml:"threshold,omitempty" json:"threshold,omitempty" mapstructure:"threshold"`
}

// Behavioral reports whether the rule has no pattern and is therefore
// evaluated only by the behavioral analyzer.
func (r *Rule) Behavioral() bool {
	return r.Pattern == ""
}
