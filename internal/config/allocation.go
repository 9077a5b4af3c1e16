package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/refundworks/refundflow/internal/common"
)

// AllocationConfig is the externally supplied map of methodology name to
// global default allocation percentage. It is read-only to the engine: a
// missing or invalid file is fatal at startup.
type AllocationConfig struct {
	Methodologies map[string]float64 `yaml:"methodologies"`
}

// LoadAllocationConfig reads and validates the methodology allocation
// defaults from a YAML file.
func LoadAllocationConfig(path string) (*AllocationConfig, error) {
	data, err := os.ReadFile(ExpandPath(path)) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read allocation config: %v", common.ErrMissingConfig, err)
	}

	var cfg AllocationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse allocation config: %v", common.ErrInvalidConfig, err)
	}

	if len(cfg.Methodologies) == 0 {
		return nil, fmt.Errorf("%w: allocation config has no methodologies", common.ErrInvalidConfig)
	}

	for meth, pct := range cfg.Methodologies {
		if pct < 0 || pct > 1 {
			return nil, fmt.Errorf("%w: allocation default for %q out of range [0,1]: %v", common.ErrInvalidConfig, meth, pct)
		}
	}

	return &cfg, nil
}
