package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aristath/riskguard/internal/modules/risk"
)

// DefaultProfile is the profile used when RISK_LIMITS_PROFILE is unset.
const DefaultProfile = "default"

type limitProfilesFile struct {
	Profiles map[string]risk.Limits `yaml:"profiles"`
}

// LoadLimitProfiles reads named limit sets from a YAML file of the form:
//
//	profiles:
//	  default:
//	    max_leverage: 2.0
//	    max_correlation_risk: 0.65
//	    max_portfolio_volatility: 0.30
//	    max_jump_risk: 0.75
//
// Every profile is validated.
func LoadLimitProfiles(path string) (map[string]risk.Limits, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read limit profiles: %w", err)
	}
	return ParseLimitProfiles(content)
}

// ParseLimitProfiles decodes the YAML document accepted by LoadLimitProfiles.
func ParseLimitProfiles(content []byte) (map[string]risk.Limits, error) {
	var file limitProfilesFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse limit profiles: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, fmt.Errorf("no limit profiles defined")
	}

	for name, limits := range file.Profiles {
		if err := limits.Validate(); err != nil {
			return nil, fmt.Errorf("limit profile %q: %w", name, err)
		}
	}
	return file.Profiles, nil
}
