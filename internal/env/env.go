// Package env composes the environment handed to spawned processes.
package env

import (
	"os"
	"sort"
	"strings"
)

// Env holds a base environment plus launcher-wide overrides.
type Env struct {
	base map[string]string
	vars map[string]string
}

// New returns an Env. When useOS is true the current process environment is
// the base; otherwise spawned processes only see globals and per-process values.
// globals are "K=V" entries; malformed entries are skipped.
func New(useOS bool, globals []string) *Env {
	e := &Env{base: map[string]string{}, vars: map[string]string{}}
	if useOS {
		putPairs(e.base, os.Environ())
	}
	putPairs(e.vars, globals)
	return e
}

// Merge composes the final environment list applying order:
// base, then launcher-wide vars, then perProc overrides.
// ${VAR} references are expanded against the composed map (single pass).
// The result is sorted by key so the child sees a stable environment.
func (e *Env) Merge(perProc []string) []string {
	m := make(map[string]string, len(e.base)+len(e.vars)+len(perProc))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.vars {
		m[k] = v
	}
	putPairs(m, perProc)

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

func putPairs(m map[string]string, kvs []string) {
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string { return m[k] })
}
