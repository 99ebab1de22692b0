// Package glossary loads a preferred-terminology map that is folded
// into the translation instruction.
package glossary

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Load reads a JSON object of term => preferred translation. An empty
// path yields a nil map.
func Load(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read glossary file %s: %w", path, err)
	}

	var data map[string]string
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse glossary JSON %s: %w", path, err)
	}

	cleaned := make(map[string]string, len(data))
	for k, v := range data {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		cleaned[key] = val
	}
	return cleaned, nil
}
