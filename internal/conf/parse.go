package conf

import (
	"fmt"

	"github.com/go-ini/ini"
	"go.yaml.in/yaml/v3"
)

func parseINI(data []byte) (map[string]map[string]string, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: false,
		SpaceBeforeInlineComment:   true,
		KeyValueDelimiters:         "=",
	}, data)
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]string)
	for _, sec := range f.Sections() {
		name := sec.Name()
		// Keys before the first section header belong to global.
		if name == ini.DefaultSection {
			name = GlobalSection
		}
		values := out[name]
		if values == nil {
			values = make(map[string]string)
			out[name] = values
		}
		for _, key := range sec.Keys() {
			values[NormalizeKey(key.Name())] = key.Value()
		}
	}
	return out, nil
}

func parseYAML(data []byte) (map[string]map[string]string, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	out := map[string]map[string]string{GlobalSection: {}}
	for section, raw := range doc {
		switch v := raw.(type) {
		case map[string]any:
			values := out[section]
			if values == nil {
				values = make(map[string]string)
				out[section] = values
			}
			for k, val := range v {
				s, err := scalar(val)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", section, k, err)
				}
				values[NormalizeKey(k)] = s
			}
		default:
			// A top-level scalar is a global option.
			s, err := scalar(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", section, err)
			}
			out[GlobalSection][NormalizeKey(section)] = s
		}
	}
	return out, nil
}

func scalar(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(val), nil
	default:
		return "", fmt.Errorf("value of type %T is not a scalar", v)
	}
}
