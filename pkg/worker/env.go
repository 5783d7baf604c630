package worker

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// environMap returns the process environment as a map
func environMap() map[string]string {
	env := os.Environ()
	m := make(map[string]string, len(env))

	for _, kv := range env {
		k, v, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		m[k] = v
	}

	return m
}

func cloneEnv(env map[string]string) map[string]string {
	m := make(map[string]string, len(env))
	for k, v := range env {
		m[k] = v
	}

	return m
}

// flattenEnv converts an env map to the KEY=VALUE form exec expects, sorted
// for deterministic process environments
func flattenEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flat := make([]string, 0, len(keys))
	for _, k := range keys {
		flat = append(flat, fmt.Sprintf("%s=%s", k, env[k]))
	}

	return flat
}
