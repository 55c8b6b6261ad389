package render

import (
	_ "embed"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed presets_default.yaml
var builtinPresets []byte

// PresetMap maps preset name to base generation parameters.
type PresetMap map[string]Params

// LoadPresets loads the built-in presets and, if path names an existing
// file, merges user presets over them (same-named user presets win).
func LoadPresets(path string) (PresetMap, error) {
	presets := make(PresetMap)
	if err := yaml.Unmarshal(builtinPresets, &presets); err != nil {
		return nil, errors.Wrap(err, "failed to parse built-in presets")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return presets, nil
			}
			return nil, errors.Wrapf(err, "failed to read preset file %s", path)
		}
		user := make(PresetMap)
		if err := yaml.Unmarshal(data, &user); err != nil {
			return nil, errors.Wrapf(err, "failed to parse preset file %s", path)
		}
		for name, p := range user {
			presets[name] = p
		}
	}
	return presets, nil
}

// Get looks up a preset by name, defaulting seed to "let the service pick".
func (m PresetMap) Get(name string) (Params, error) {
	p, ok := m[name]
	if !ok {
		return Params{}, errors.Errorf("unknown render preset %q", name)
	}
	if p.Seed == 0 {
		p.Seed = -1
	}
	return p, nil
}
