package provider

import (
	"fmt"
	"os"
	"strings"
)

// ParseEnvFile reads KEY=VALUE lines, skipping blanks and comments. An
// optional "export " prefix and surrounding quotes are removed.
func ParseEnvFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var envVars []string
	for _, line := range splitLines(data) {
		s := strings.TrimSpace(string(line))
		if s == "" || s[0] == '#' {
			continue
		}
		s = strings.TrimPrefix(s, "export ")
		eqIdx := strings.IndexByte(s, '=')
		if eqIdx < 0 {
			continue
		}
		key := s[:eqIdx]
		val := s[eqIdx+1:]
		val = stripQuotes(val)
		envVars = append(envVars, key+"="+val)
	}
	return envVars, nil
}

// LoadEnvFile sets every variable from path that is not already set in the
// process environment.
func LoadEnvFile(path string) error {
	vars, err := ParseEnvFile(path)
	if err != nil {
		return fmt.Errorf("reading secrets env file: %w", err)
	}
	for _, kv := range vars {
		key, val, _ := strings.Cut(kv, "=")
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
	}
	return nil
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
