package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// normalize returns the config file as JSON. YAML files go through yaml.v3
// first so both formats meet the same strict decoder and unknown keys fail
// the same way.
func normalize(path string, data []byte) ([]byte, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".yaml" && ext != ".yml" {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(jsonable(doc))
}

// jsonable rewrites non-string YAML map keys, such as admin ids written as
// bare numbers, into strings.
func jsonable(v any) any {
	switch n := v.(type) {
	case map[string]any:
		for k, e := range n {
			n[k] = jsonable(e)
		}
		return n
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[fmt.Sprint(k)] = jsonable(e)
		}
		return out
	case []any:
		for i, e := range n {
			n[i] = jsonable(e)
		}
		return n
	}
	return v
}
