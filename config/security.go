package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxConfigSize = 10 << 20 // a pipeline config should never approach 10MB
	maxJSONDepth  = 100
	maxPathLen    = 4096
)

// validateConfigPath rejects paths that escape the working directory or
// point at something other than a JSON config.
func validateConfigPath(path string) error {
	switch {
	case path == "":
		return errors.New("empty config path")
	case len(path) > maxPathLen:
		return fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cannot get working directory: %w", err)
	}

	// The config path often comes from a CLI flag or env var. Absolute
	// paths are fine as long as they do not smuggle parent references;
	// relative ones must stay under the working directory.
	if filepath.IsAbs(path) {
		if strings.Contains(filepath.ToSlash(absPath), "..") {
			return fmt.Errorf("path traversal not allowed: %s", path)
		}
	} else if rel, err := filepath.Rel(cwd, absPath); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path traversal not allowed: %s resolves outside working directory", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5", ".yaml", ".yml":
		return nil
	default:
		return fmt.Errorf("only JSON or YAML config files allowed: %s", path)
	}
}

// safeReadFile reads a config file after validating the path, size and
// file type, so a mistyped --config cannot pull in a device file or a
// multi-gigabyte log.
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	info, err := os.Stat(path)
	switch {
	case err != nil:
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	case info.Size() > maxConfigSize:
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	case !info.Mode().IsRegular():
		return nil, fmt.Errorf("not a regular file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}
	return data, nil
}

// safeWriteFile writes a config file with the same path validation as
// safeReadFile. Configs may carry cluster credentials, so the file is
// written owner read/write only.
func safeWriteFile(path string, data []byte) error {
	if err := validateConfigPath(path); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}
	if len(data) > maxConfigSize {
		return fmt.Errorf("config data too large: %d bytes > %d", len(data), maxConfigSize)
	}
	return os.WriteFile(path, data, 0600)
}

// validateJSONDepth caps nesting before the document reaches the JSON
// decoder. Bracket counting skips string contents so brackets inside
// index patterns or messages do not count.
func validateJSONDepth(data []byte) error {
	var nesting int
	var inQuote, escape bool

	for _, b := range data {
		switch {
		case escape:
			escape = false
		case b == '\\' && inQuote:
			escape = true
		case b == '"':
			inQuote = !inQuote
		case inQuote:
			// brackets inside strings do not nest
		case b == '{' || b == '[':
			if nesting++; nesting > maxJSONDepth {
				return fmt.Errorf("JSON nesting too deep: %d > %d", nesting, maxJSONDepth)
			}
		case b == '}' || b == ']':
			if nesting--; nesting < 0 {
				return errors.New("malformed JSON: unbalanced brackets")
			}
		}
	}
	if nesting != 0 {
		return fmt.Errorf("malformed JSON: unclosed brackets (depth=%d)", nesting)
	}
	return nil
}
