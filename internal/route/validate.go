// ABOUTME: Route table validation using ozzo-validation
// ABOUTME: Rejects empty paths, duplicate names, unknown roles and role gates without auth

package route

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/2389/gatekeeper/internal/session"
)

// ErrInvalidTable wraps every route table validation failure.
var ErrInvalidTable = errors.New("invalid route table")

// Validate checks a single segment's requirements.
func (m Meta) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.RequiresRole, validation.By(knownRole)),
	)
}

// Validate checks a single descriptor, not its children.
func (d Descriptor) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Path, validation.Required, validation.By(noQuery)),
		validation.Field(&d.Name, validation.By(noWhitespace)),
		validation.Field(&d.Meta),
	)
}

func knownRole(value interface{}) error {
	r, _ := value.(session.Role)
	if r == "" || r.IsValid() {
		return nil
	}
	return errors.New("must be admin or user")
}

func noQuery(value interface{}) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, "?#") {
		return errors.New("must not contain a query or fragment")
	}
	return nil
}

func noWhitespace(value interface{}) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, " \t\n") {
		return errors.New("must not contain whitespace")
	}
	return nil
}

func validateTable(roots []Descriptor) error {
	if len(roots) == 0 {
		return fmt.Errorf("%w: no routes declared", ErrInvalidTable)
	}
	names := make(map[string]string)
	paths := make(map[string]bool)
	for i := range roots {
		if err := validateTree(&roots[i], "", false, names, paths); err != nil {
			return err
		}
	}
	return nil
}

func validateTree(d *Descriptor, parent string, ancestorAuth bool, names map[string]string, paths map[string]bool) error {
	full := d.Path
	if d.Path != "" {
		full = joinPath(parent, d.Path)
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: route %q: %v", ErrInvalidTable, full, err)
	}

	if paths[full] {
		return fmt.Errorf("%w: duplicate path %q", ErrInvalidTable, full)
	}
	paths[full] = true

	if d.Name != "" {
		if other, dup := names[d.Name]; dup {
			return fmt.Errorf("%w: name %q used by %q and %q", ErrInvalidTable, d.Name, other, full)
		}
		names[d.Name] = full
	}

	requiresAuth := ancestorAuth || d.Meta.RequiresAuth
	if d.Meta.RequiresRole != "" && !requiresAuth {
		return fmt.Errorf("%w: route %q requires role %q but not authentication", ErrInvalidTable, full, d.Meta.RequiresRole)
	}

	for i := range d.Children {
		if err := validateTree(&d.Children[i], full, requiresAuth, names, paths); err != nil {
			return err
		}
	}
	return nil
}
