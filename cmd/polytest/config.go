package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"
)

// Config maps to polytest.toml. Every field has a flag counterpart;
// explicit flags win over the file.
type Config struct {
	Run RunConfig `toml:"run"`
	Log LogConfig `toml:"log"`
}

// RunConfig maps to the [run] section.
type RunConfig struct {
	Concurrency  int      `toml:"concurrency"`
	Trace        string   `toml:"trace"`
	XUnit        string   `toml:"xunit"`
	Environments []string `toml:"environments"`
	Scenarios    []string `toml:"scenarios"`
}

// LogConfig maps to the [log] section.
type LogConfig struct {
	Verbose bool `toml:"verbose"`
	Quiet   bool `toml:"quiet"`
	JSON    bool `toml:"json"`
}

// defaultConfigFile is looked for in the working directory when --config
// is not given.
const defaultConfigFile = "polytest.toml"

// loadConfig reads the TOML config file. A missing default file is not
// an error; a missing explicit file is. Unknown keys are rejected so
// typos do not silently disable settings.
func loadConfig(path string, explicit bool) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0])
	}
	return &cfg, nil
}
