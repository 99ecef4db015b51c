// Package identity tells which environment (staging, production, ...) the
// relay runs in, so alerts can be labeled and colored accordingly.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownEnvironment = errors.New("unknown environment")

// Environment labels emitted alerts.
type Environment struct {
	Label string
	Color string
}

// Resolver looks the environment up. Implementations are called once per
// emitted notification and do not cache.
type Resolver interface {
	ResolveEnvironment(ctx context.Context) (Environment, error)
}

// Rule maps an account alias substring to an environment.
type Rule struct {
	Contains string
	Label    string
	Color    string
}

// DefaultRules are checked in order: staging first, then production.
var DefaultRules = []Rule{
	{Contains: "staging", Label: "staging", Color: "#ffc76d"},
	{Contains: "production", Label: "production", Color: "#ff0000"},
}

// Match returns the environment of the first rule whose marker appears in alias.
func Match(alias string, rules []Rule) (Environment, error) {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	for _, r := range rules {
		if r.Contains != "" && strings.Contains(alias, r.Contains) {
			return Environment{Label: r.Label, Color: r.Color}, nil
		}
	}
	return Environment{}, fmt.Errorf("%w: account alias %q matches no rule", ErrUnknownEnvironment, alias)
}

// Static always resolves to the same environment.
type Static struct {
	Env Environment
}

func (s Static) ResolveEnvironment(ctx context.Context) (Environment, error) {
	_ = ctx
	if strings.TrimSpace(s.Env.Label) == "" {
		return Environment{}, fmt.Errorf("%w: static label is empty", ErrUnknownEnvironment)
	}
	return s.Env, nil
}
