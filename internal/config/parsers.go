// Package config loads the load runner's settings from flags and an optional
// JSON or YAML file.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// lookupSetting returns the first candidate key present in settings, also
// trying its lowercase form.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		if val, ok := settings[strings.ToLower(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
}

func asFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unsupported float type %T", value)
	}
}

func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return false, nil
		}
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asDuration accepts Go duration strings ("250ms") or bare numbers, which are
// taken as seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		return time.ParseDuration(v)
	case int, int32, int64, uint64:
		n, _ := asInt(v)
		return time.Duration(n) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
}

func asStringMap(value interface{}) (map[string]string, error) {
	entries, err := toStringKeyMapPreservingCase(value)
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(entries))
	for k, v := range entries {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("key cannot be empty")
		}
		str, err := asString(v)
		if err != nil {
			return nil, err
		}
		result[k] = str
	}
	return result, nil
}

func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case string:
		return []string{v}, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	result := make([]string, len(items))
	for i, item := range items {
		str, err := asString(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		result[i] = str
	}
	return result, nil
}

func toInterfaceSlice(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	case []map[string]interface{}:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", value)
	}
}

// toStringKeyMap converts a decoded map to map[string]interface{} with
// lowercased keys.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	entries, err := toStringKeyMapPreservingCase(value)
	if err != nil {
		return nil, err
	}
	result := make(map[string]interface{}, len(entries))
	for k, v := range entries {
		result[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return result, nil
}

func toStringKeyMapPreservingCase(value interface{}) (map[string]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return v, nil
	case map[string]string:
		result := make(map[string]interface{}, len(v))
		for k, val := range v {
			result[k] = val
		}
		return result, nil
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(v))
		for k, val := range v {
			key, err := asString(k)
			if err != nil {
				return nil, err
			}
			result[key] = val
		}
		return result, nil
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
}

// settingReader copies file settings into config fields. The first
// conversion error is kept and later reads become no-ops.
type settingReader struct {
	settings map[string]interface{}
	err      error
}

func (s *settingReader) lookup(keys []string) (interface{}, bool) {
	if s.err != nil {
		return nil, false
	}
	return lookupSetting(s.settings, keys...)
}

func (s *settingReader) fail(key string, err error) bool {
	s.err = fmt.Errorf("%s: %w", key, err)
	return false
}

func (s *settingReader) intVal(dst *int, keys ...string) bool {
	raw, ok := s.lookup(keys)
	if !ok {
		return false
	}
	v, err := asInt(raw)
	if err != nil {
		return s.fail(keys[0], err)
	}
	*dst = v
	return true
}

func (s *settingReader) floatVal(dst *float64, keys ...string) bool {
	raw, ok := s.lookup(keys)
	if !ok {
		return false
	}
	v, err := asFloat64(raw)
	if err != nil {
		return s.fail(keys[0], err)
	}
	*dst = v
	return true
}

func (s *settingReader) boolVal(dst *bool, keys ...string) bool {
	raw, ok := s.lookup(keys)
	if !ok {
		return false
	}
	v, err := asBool(raw)
	if err != nil {
		return s.fail(keys[0], err)
	}
	*dst = v
	return true
}

func (s *settingReader) durationVal(dst *time.Duration, keys ...string) bool {
	raw, ok := s.lookup(keys)
	if !ok {
		return false
	}
	v, err := asDuration(raw)
	if err != nil {
		return s.fail(keys[0], err)
	}
	*dst = v
	return true
}

func (s *settingReader) stringVal(dst *string, keys ...string) bool {
	raw, ok := s.lookup(keys)
	if !ok {
		return false
	}
	v, err := asString(raw)
	if err != nil {
		return s.fail(keys[0], err)
	}
	*dst = strings.TrimSpace(v)
	return true
}

func (s *settingReader) lowerVal(dst *string, keys ...string) bool {
	if !s.stringVal(dst, keys...) {
		return false
	}
	*dst = strings.ToLower(*dst)
	return true
}

func (s *settingReader) listVal(dst *[]string, keys ...string) bool {
	raw, ok := s.lookup(keys)
	if !ok {
		return false
	}
	v, err := asStringSlice(raw)
	if err != nil {
		return s.fail(keys[0], err)
	}
	*dst = v
	return true
}
