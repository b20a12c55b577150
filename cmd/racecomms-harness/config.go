package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

// fileConfig is the on-disk racecomms.conf schema: defaults for the same
// settings app.Flags exposes on the command line, loaded first so a
// deployment can pin them once instead of repeating them on every
// invocation. This is the same two-layer config scheme lnd.go applies via
// btcsuite/go-flags (an INI pass, then command-line overrides) -- done here
// with the upstream jessevdk/go-flags module instead.
type fileConfig struct {
	EtcDirectory string `long:"etcdir" description:"directory for persisted checkpoints and salts"`
	AuxDirectory string `long:"auxdir" description:"directory HostCallbacks file ops are rooted at"`
	LogLevel     string `long:"loglevel" description:"trace|debug|info|warn|error|critical"`
	MetricsAddr  string `long:"metricsaddr" description:"address to serve /metrics on, empty to disable"`
	Persona      string `long:"persona" description:"persona name reported to GetActivePersona"`
}

// loadFileConfig reads path into fc's zero value. A missing file is not an
// error -- every field still has its command-line flag default to fall
// back on.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fc, nil
	}

	parser := flags.NewParser(&fc, flags.IgnoreUnknown)
	if err := flags.NewIniParser(parser).ParseFile(path); err != nil {
		return fc, err
	}
	return fc, nil
}

// override replaces def with v when the config file actually set it,
// otherwise def (the command-line flag's built-in default) stands.
func override(def, v string) string {
	if v == "" {
		return def
	}
	return v
}
