// ABOUTME: Validation rules for gatekeeper configuration
// ABOUTME: Section rules use ozzo-validation; cross-field rules are checked by hand

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/2389/gatekeeper/internal/dispatch"
	"github.com/2389/gatekeeper/internal/guard"
	"github.com/2389/gatekeeper/internal/route"
	"github.com/2389/gatekeeper/internal/session"
)

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first section that fails.
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	table, err := c.RouteTable()
	if err != nil {
		return fmt.Errorf("routes: %w", err)
	}
	if err := c.Guard.validateAgainst(table); err != nil {
		return fmt.Errorf("guard: %w", err)
	}
	return nil
}

// Validate checks the API section.
func (a APIConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.BaseURL, validation.Required, is.URL),
		validation.Field(&a.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&a.AuthPrecedence, validation.In(
			dispatch.PrecedenceSession.String(),
			dispatch.PrecedenceCaller.String(),
		)),
	)
}

// Validate checks the session section.
func (s SessionConfig) Validate() error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.Backend, validation.Required, validation.In(
			BackendMemory, BackendFile, BackendSQLite, BackendRedis,
		)),
	)
	if err != nil {
		return err
	}
	if s.Backend == BackendRedis && s.RedisURL == "" {
		return errors.New("redis_url is required for the redis backend")
	}
	return nil
}

func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("text", "json")),
	)
}

// validateAgainst checks every route name the guard can redirect to exists.
// Homes may name roles beyond admin and user; the API decides which roles exist.
func (g GuardConfig) validateAgainst(table *route.Table) error {
	names := []string{g.LoginRoute}
	homes := g.HomeRoutes()
	names = append(names, homes.Default)
	for role, name := range homes.ByRole {
		if strings.TrimSpace(string(role)) == "" {
			return errors.New("homes: role must not be blank")
		}
		names = append(names, name)
	}
	for _, name := range names {
		if _, err := table.ByName(name); err != nil {
			return err
		}
	}
	return nil
}

// HomeRoutes returns the configured role homes layered over the defaults.
func (g GuardConfig) HomeRoutes() guard.HomeRoutes {
	homes := guard.DefaultHomes()
	for role, name := range g.Homes {
		homes.ByRole[session.Role(role)] = name
	}
	if g.DefaultHome != "" {
		homes.Default = g.DefaultHome
	}
	return homes
}

// Precedence returns the parsed Authorization precedence.
func (a APIConfig) Precedence() dispatch.Precedence {
	p, _ := dispatch.ParsePrecedence(a.AuthPrecedence)
	return p
}

// RouteTable builds the configured route table, or the default table when
// no routes are declared.
func (c *Config) RouteTable() (*route.Table, error) {
	if len(c.Routes) == 0 {
		return route.Default(), nil
	}
	return route.NewTable(c.Routes...)
}
