package core

import (
	"fmt"
	"slices"
	"strings"
)

// Environment is the deployment the service runs in. It selects the log
// format and level.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

var environments = []Environment{Development, Staging, Testing, Production}

func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether the environment corresponds to production.
func (e Environment) IsProduction() bool {
	return e == Production
}

// StructuredLogs reports whether logs are written as JSON lines instead of
// the console format.
func (e Environment) StructuredLogs() bool {
	return e == Production || e == Staging
}

// Decode lets envconfig bind ENVIRONMENT directly into an Environment. An
// empty value means Development.
func (e *Environment) Decode(value string) error {
	env, err := ParseEnvironment(value)
	if err != nil {
		return err
	}
	*e = env
	return nil
}

// ParseEnvironment accepts the known names case-insensitively.
func ParseEnvironment(v string) (Environment, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return Development, nil
	}
	env := Environment(v)
	if !slices.Contains(environments, env) {
		return "", fmt.Errorf("unknown environment %q, want one of %v", v, environments)
	}
	return env, nil
}
