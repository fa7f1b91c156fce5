// Package config loads the kernel's memory-subsystem boot tunables
// from a YAML file, the same way tinyrange-cc's VM/container templates
// are declared in YAML rather than compiled in. This is the one
// genuinely optional ambient piece: a kernel that never finds a boot
// config simply runs with limits.Default().
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"limits"
)

/// BootConfig_t is the on-disk shape of a boot config file.
type BootConfig_t struct {
	ResidentMax   int `yaml:"resident_max"`
	MaxSwapSlots  int `yaml:"max_swap_slots"`
	MaxPagesInfo  int `yaml:"max_pages_info"`
	FramePoolSize int `yaml:"frame_pool_size"`
}

/// LoadBootConfig reads and parses a boot config file at path,
/// returning the tunables it describes. Any field left at zero in the
/// file falls back to the corresponding limits.Default() value, so a
/// partial override file is valid.
func LoadBootConfig(path string) (limits.Tunables_t, error) {
	def := limits.Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("config: read %s: %w", path, err)
	}
	var bc BootConfig_t
	if err := yaml.Unmarshal(raw, &bc); err != nil {
		return def, fmt.Errorf("config: parse %s: %w", path, err)
	}
	t := def
	if bc.ResidentMax > 0 {
		t.ResidentMax = bc.ResidentMax
	}
	if bc.MaxSwapSlots > 0 {
		t.MaxSwapSlots = bc.MaxSwapSlots
	}
	if bc.MaxPagesInfo > 0 {
		t.MaxPagesInfo = bc.MaxPagesInfo
	}
	if bc.FramePoolSize > 0 {
		t.FramePoolSize = bc.FramePoolSize
	}
	return t, nil
}
