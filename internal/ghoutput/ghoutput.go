// Package ghoutput publishes deployment results as GitHub Actions step outputs.
package ghoutput

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/tridyme/tridyme-cli/internal/env"
)

// EnvVar names the file GitHub Actions reads step outputs from.
const EnvVar = "GITHUB_OUTPUT"

// Path returns the output file named by vars, or "" outside GitHub Actions.
func Path(vars env.Vars) string {
	v, _ := vars.Lookup(EnvVar)
	return strings.TrimSpace(v)
}

// Write appends values to the output file at path. An empty path is a no-op.
// Multi-line values use the heredoc form with a random delimiter.
func Write(path string, values map[string]string) error {
	if path == "" || len(values) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", EnvVar, err)
	}
	defer func() { _ = f.Close() }()

	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, key := range keys {
		value := values[key]
		if strings.ContainsAny(value, "\r\n") {
			delim := "ghadelimiter_" + uuid.NewString()
			fmt.Fprintf(&b, "%s<<%s\n%s\n%s\n", key, delim, value, delim)
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", key, value)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write %s: %w", EnvVar, err)
	}
	return nil
}
