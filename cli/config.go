package cli

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/jsqlang/jsq/compiler"
	"github.com/jsqlang/jsq/pkg/schema"
)

// Config carries the settings the commands run with.
type Config struct {
	// Schema is the path of the YAML schema file naming the element type.
	Schema string `koanf:"schema"`
	// Suspendable compiles pipeline stages for the suspension-capable
	// operator family.
	Suspendable bool `koanf:"suspendable"`
	Verbose     bool `koanf:"verbose"`
}

// LoadConfig resolves the config from defaults, the config file, JSQ_
// environment variables, and any flags changed on the command line, in
// rising precedence.  An empty cfgFile means jsq.yaml when it exists.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]any{
		"schema":      "",
		"suspendable": false,
		"verbose":     false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	if cfgFile == "" {
		if _, err := os.Stat("jsq.yaml"); err == nil {
			cfgFile = "jsq.yaml"
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
		}
	}
	if err := k.Load(env.Provider("JSQ_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "JSQ_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if flags != nil {
		// Passing k keeps unchanged flags from overriding file and env
		// values with their defaults.
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("flags: %w", err)
		}
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// ElementType loads the schema file and synthesizes the element type.
func (c *Config) ElementType() (reflect.Type, error) {
	if c.Schema == "" {
		return nil, errors.New("no element schema: pass -s, set JSQ_SCHEMA, or put schema in jsq.yaml")
	}
	s, err := schema.Load(c.Schema)
	if err != nil {
		return nil, err
	}
	return s.Type()
}

// Settings returns the compiler settings the config selects.
func (c *Config) Settings() compiler.Settings {
	return compiler.Settings{UseSuspendableProvider: c.Suspendable}
}
