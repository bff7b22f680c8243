// Package clusterconfig loads the node configuration file of §6: flat
// key=value lines with '#' comments, plus a users_file of user:pass lines.
package clusterconfig

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// kvParser implements koanf.Parser for the flat key=value format. Unlike
// the admin-surface config (YAML, via the koanf yaml.Parser the original
// loader used) this file has no nesting, so a small line-oriented parser
// replaces it rather than stretching YAML over a format that was never
// hierarchical.
type kvParser struct{}

// Parser returns the koanf.Parser for the flat config format.
func Parser() kvParser { return kvParser{} }

func (kvParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	lines := strings.Split(string(b), "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, fmt.Errorf("clusterconfig: line %d: missing '=': %q", i+1, raw)
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			return nil, fmt.Errorf("clusterconfig: line %d: empty key", i+1)
		}
		out[key] = val
	}
	return out, nil
}

func (kvParser) Marshal(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s=%v\n", k, m[k])
	}
	return buf.Bytes(), nil
}
