// Package env parses the command environment and exit code lists given on
// the command line.
package env

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/slok/stager/internal/model"
)

var envKeyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseSpecs parses `KEY=VALUE` specs. A bare `KEY` takes its value from the
// current process environment.
func ParseSpecs(specs []string) (map[string]string, error) {
	return parseSpecs(specs, os.LookupEnv)
}

func parseSpecs(specs []string, lookupEnv func(string) (string, bool)) (map[string]string, error) {
	env := make(map[string]string, len(specs))

	for _, spec := range specs {
		key, value, hasValue := strings.Cut(spec, "=")
		if !envKeyRegexp.MatchString(key) {
			return nil, fmt.Errorf("invalid environment variable key %q: %w", key, model.ErrNotValid)
		}

		if !hasValue {
			v, ok := lookupEnv(key)
			if !ok {
				return nil, fmt.Errorf("environment variable %q is not set: %w", key, model.ErrNotValid)
			}
			value = v
		}

		env[key] = value
	}

	return env, nil
}

// MergeMaps returns a new map with override applied on top of base.
func MergeMaps(base map[string]string, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	maps.Copy(merged, base)
	maps.Copy(merged, override)
	return merged
}

// ParseExitCodes parses a comma separated list of exit codes, e.g. `124, 3`.
// Empty items are ignored.
func ParseExitCodes(s string) ([]int, error) {
	var codes []int
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		code, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("invalid exit code %q: %w", item, model.ErrNotValid)
		}
		codes = append(codes, code)
	}

	return codes, nil
}
