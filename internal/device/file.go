package device

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// inventoryFile is the on-disk shape of a device inventory.
type inventoryFile struct {
	Devices []Config `yaml:"devices"`
}

// LoadFile reads a YAML device inventory and validates every entry.
// Duplicate IDs within the file are rejected so a bad inventory fails
// at startup rather than silently shadowing devices.
//
// Parameters:
//   - path: Path to the inventory file
//
// Returns:
//   - []Config: Validated device configs in file order
//   - error: If the file cannot be read, parsed, or validated
func LoadFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device inventory: %w", err)
	}

	var inv inventoryFile
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parsing device inventory: %w", err)
	}

	seen := make(map[string]bool, len(inv.Devices))
	for i := range inv.Devices {
		cfg := &inv.Devices[i]
		cfg.ExpandTopics()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("device inventory entry %d (%q): %w", i, cfg.ID, err)
		}
		if seen[cfg.ID] {
			return nil, fmt.Errorf("device inventory entry %d: %w: duplicate id %q", i, ErrInvalidConfig, cfg.ID)
		}
		seen[cfg.ID] = true
	}

	return inv.Devices, nil
}
