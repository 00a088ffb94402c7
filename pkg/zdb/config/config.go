// Package config reads zdb settings from the environment, .env files or a YAML file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultFileName         = "/.env"
	defaultOverrideFileName = "/.local.env"
)

// Config is a read-only view over key/value settings.
type Config interface {
	Get(key string) string
	GetOrDefault(key, defaultValue string) string
}

// Logger receives notices about which files were loaded.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// EnvLoader serves values from the process environment after loading .env files into it.
type EnvLoader struct {
	logger Logger
}

// NewEnvFile loads <folder>/.env and then the environment specific override, which is
// <folder>/.<APP_ENV>.env when APP_ENV is set and <folder>/.local.env otherwise. Variables already
// present in the process environment are never overwritten by the base file.
func NewEnvFile(folder string, logger Logger) Config {
	l := &EnvLoader{logger: logger}
	l.read(folder)

	return l
}

func (e *EnvLoader) read(folder string) {
	var (
		defaultFile  = folder + defaultFileName
		overrideFile = folder + defaultOverrideFileName
		env          = e.Get("APP_ENV")
	)

	if err := godotenv.Load(defaultFile); err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			e.logger.Warnf("failed to load config from file: %v, err: %v", defaultFile, err)
		}
	} else {
		e.logger.Debugf("loaded config from file: %v", defaultFile)
	}

	if env != "" {
		overrideFile = fmt.Sprintf("%s/.%s.env", folder, env)
	}

	if err := godotenv.Overload(overrideFile); err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			e.logger.Warnf("failed to load config from file: %v, err: %v", overrideFile, err)
		}
	} else {
		e.logger.Debugf("loaded config from file: %v", overrideFile)
	}
}

func (*EnvLoader) Get(key string) string {
	return os.Getenv(key)
}

func (e *EnvLoader) GetOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}

	return defaultValue
}

// YAMLConfig serves values from a flat YAML document, falling back to the environment for keys
// the document does not define.
type YAMLConfig struct {
	values map[string]string
}

// NewYAMLFile reads path as a YAML mapping of scalar values. Keys are upper-cased so that
// `db_host: x` and `DB_HOST: x` are equivalent.
func NewYAMLFile(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %s", path)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}

		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}

	return &YAMLConfig{values: values}, nil
}

func (y *YAMLConfig) Get(key string) string {
	if v, ok := y.values[strings.ToUpper(key)]; ok {
		return v
	}

	return os.Getenv(key)
}

func (y *YAMLConfig) GetOrDefault(key, defaultValue string) string {
	if v := y.Get(key); v != "" {
		return v
	}

	return defaultValue
}

type mockConfig struct {
	conf map[string]string
}

// NewMockConfig returns a Config backed only by values.
func NewMockConfig(values map[string]string) Config {
	return &mockConfig{conf: values}
}

func (m *mockConfig) Get(key string) string {
	return m.conf[key]
}

func (m *mockConfig) GetOrDefault(key, defaultValue string) string {
	if v, ok := m.conf[key]; ok && v != "" {
		return v
	}

	return defaultValue
}
