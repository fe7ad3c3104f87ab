// Package config loads configuration the way the teacher's main()
// functions do (github.com/ardanlabs/conf parses flags/env into a struct),
// extended per spec §6: identifiers and credentials may also come from a
// JSON secrets file, read first so conf.Parse's env/flag layer can still
// override it. Unknown keys in the JSON file are a warning, never fatal.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ardanlabs/conf"
)

// Logger is the minimal logging surface config needs, satisfied by
// foundation/logger.Logger.
type Logger interface {
	Warnf(format string, args ...interface{})
}

// LoadSecretsFile reads a JSON file at path into cfg before conf.Parse runs.
// Missing file is not an error -- secrets may come entirely from the
// environment. Fields in the file that don't match cfg are logged as
// warnings, never treated as fatal, per spec §6.
func LoadSecretsFile(log Logger, path string, cfg interface{}) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading secrets file %s: %w", path, err)
	}

	strict := json.NewDecoder(bytes.NewReader(data))
	strict.DisallowUnknownFields()
	if err := strict.Decode(cfg); err != nil {
		log.Warnf("secrets file %s has keys unknown to configuration (%v), loading only matching fields", path, err)
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing secrets file %s: %w", path, err)
		}
	}
	return nil
}

// Parse parses args/env into cfg using conf, after LoadSecretsFile has
// already applied file-based defaults. prefix is the env var prefix, same
// convention as the teacher's binaries (e.g. "GTFS_LOADER").
func Parse(args []string, prefix string, cfg interface{}) error {
	return conf.Parse(args, prefix, cfg)
}
