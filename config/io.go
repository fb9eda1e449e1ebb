package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// legacySection is the group older .conf files keep the step configuration in.
const legacySection = "config"

// Format of a configuration file.
type Format string

// Supported configuration file formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatINI  Format = "ini"
)

// FormatFromPath picks the format from the file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".conf", ".ini":
		return FormatINI
	default:
		return FormatJSON
	}
}

// ReadAttributes reads the raw attribute map from a file. Environment variables in the file are
// expanded first.
func ReadAttributes(path string) (AttributeMap, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseAttributes(buf, FormatFromPath(path))
}

// ParseAttributes parses the raw attribute map from buf.
func ParseAttributes(buf []byte, format Format) (AttributeMap, error) {
	attrs := AttributeMap{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(buf, &attrs); err != nil {
			return nil, errors.Wrap(err, "parsing yaml config")
		}
	case FormatINI:
		f, err := ini.Load(buf)
		if err != nil {
			return nil, errors.Wrap(err, "parsing ini config")
		}
		section, err := f.GetSection(legacySection)
		if err != nil {
			return nil, errors.Wrapf(err, "ini config has no [%s] section", legacySection)
		}
		for _, key := range section.Keys() {
			attrs[key.Name()] = key.String()
		}
	default:
		// json5 so hand edited configs may carry comments and trailing commas
		if err := json5.Unmarshal(buf, &attrs); err != nil {
			return nil, errors.Wrap(err, "parsing json config")
		}
	}
	return attrs, nil
}

// Read reads and decodes a configuration file, returning the keys it did not recognise.
func Read(path string) (*FitConfig, []string, error) {
	attrs, err := ReadAttributes(path)
	if err != nil {
		return nil, nil, err
	}
	return Decode(attrs)
}

// Write saves cfg in the format matching the path's extension.
func Write(path string, cfg *FitConfig) error {
	buf, err := Marshal(cfg, FormatFromPath(path))
	if err != nil {
		return err
	}
	//nolint:gosec
	return os.WriteFile(path, buf, 0o644)
}

// Marshal encodes cfg. INI output uses the legacy [config] section with "True"/"False"
// booleans.
func Marshal(cfg *FitConfig, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		attrs, err := cfg.AttributeMap()
		if err != nil {
			return nil, err
		}
		return yaml.Marshal(map[string]interface{}(attrs))
	case FormatINI:
		return marshalINI(cfg)
	default:
		return json.MarshalIndent(cfg, "", "    ")
	}
}

func marshalINI(cfg *FitConfig) ([]byte, error) {
	attrs, err := cfg.AttributeMap()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := ini.Empty()
	section, err := f.NewSection(legacySection)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		value := cast.ToString(attrs[k])
		if b, ok := attrs[k].(bool); ok {
			value = "False"
			if b {
				value = "True"
			}
		}
		if _, err := section.NewKey(k, value); err != nil {
			return nil, errors.Wrapf(err, "writing %q", k)
		}
	}
	var sb strings.Builder
	if _, err := f.WriteTo(&sb); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// ReadLandmarkTargets reads a JSON object mapping target names to [x, y, z] positions.
func ReadLandmarkTargets(path string) (map[string]r3.Vector, error) {
	//nolint:gosec
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string][3]float64
	if err := json5.Unmarshal(buf, &raw); err != nil {
		return nil, errors.Wrapf(err, "parsing landmark targets %q", path)
	}
	targets := make(map[string]r3.Vector, len(raw))
	for name, p := range raw {
		targets[name] = r3.Vector{X: p[0], Y: p[1], Z: p[2]}
	}
	return targets, nil
}
