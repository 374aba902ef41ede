package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ConfigSource describes the yaml file behind the current process settings.
type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

// fileSource is read once per process. Environment variables always win over its values.
var fileSource struct {
	once   sync.Once
	err    error
	info   ConfigSource
	values map[string]string
}

func CurrentConfigSource() (ConfigSource, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ConfigSource{}, err
	}
	return fileSource.info, nil
}

// ensureRuntimeConfigLoaded reads CONFIG_FILE, or config/config-$CONFIG_PHASE.yaml when
// unset. A missing default file is not an error.
func ensureRuntimeConfigLoaded() error {
	fileSource.once.Do(func() {
		fileSource.values = map[string]string{}
		phase := strings.TrimSpace(os.Getenv("CONFIG_PHASE"))
		if phase == "" {
			phase = "local"
		}
		fileSource.info.Phase = phase

		path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
		explicit := path != ""
		if !explicit {
			path = filepath.Join("config", "config-"+phase+".yaml")
		}
		values, err := readConfigFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist) && !explicit:
			return
		case err != nil:
			fileSource.err = err
			return
		}
		fileSource.values = values
		fileSource.info.Loaded = true
		fileSource.info.Path = path
		if abs, err := filepath.Abs(path); err == nil {
			fileSource.info.Path = abs
		}
	})
	return fileSource.err
}

func readConfigFile(path string) (map[string]string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	raw := make(map[string]any)
	if err := yaml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	flat, err := flattenConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("flatten config file %q: %w", path, err)
	}
	return flat, nil
}

func valueForKey(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	if ensureRuntimeConfigLoaded() != nil {
		return ""
	}
	return strings.TrimSpace(fileSource.values[key])
}

// flattenConfig turns nested yaml into UPPER_SNAKE keys: crank.poll-interval becomes
// CRANK_POLL_INTERVAL and lists become comma-separated values.
func flattenConfig(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string)
	if err := flattenInto("", raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(prefix string, value any, out map[string]string) error {
	join := func(key string) string {
		segment := normalizeKeySegment(key)
		if segment == "" || prefix == "" {
			return segment
		}
		return prefix + "_" + segment
	}

	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			if next := join(key); next != "" {
				if err := flattenInto(next, child, out); err != nil {
					return err
				}
			}
		}
	case map[any]any:
		for key, child := range typed {
			text, ok := key.(string)
			if !ok {
				return fmt.Errorf("unsupported map key type %T under %q", key, prefix)
			}
			if next := join(text); next != "" {
				if err := flattenInto(next, child, out); err != nil {
					return err
				}
			}
		}
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch scalar := item.(type) {
			case string:
				if s := strings.TrimSpace(scalar); s != "" {
					parts = append(parts, s)
				}
			case bool, int, int64, uint64, float64:
				parts = append(parts, fmt.Sprint(scalar))
			default:
				return fmt.Errorf("unsupported list item type %T under %q", item, prefix)
			}
		}
		out[prefix] = strings.Join(parts, ",")
	case nil:
	default:
		out[prefix] = fmt.Sprint(typed)
	}
	return nil
}

func normalizeKeySegment(raw string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(raw) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
