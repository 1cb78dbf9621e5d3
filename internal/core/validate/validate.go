// Package validate provides shared validation functions.
package validate

import (
	"fmt"
	"strings"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/bell/internal/core/notify"
)

// Title validates a notification title is non-empty after trimming whitespace.
func Title(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// Type validates a notification type name. Empty selects the default.
func Type(typ string) error {
	if typ == "" || notify.Type(typ).IsValid() {
		return nil
	}
	return fmt.Errorf("invalid type %q: expected success, error, info or warning", typ)
}

// UserID validates a user id is non-empty and has no whitespace.
func UserID(id string) error {
	if id == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.ContainsFunc(id, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }) {
		return fmt.Errorf("user id %q must not contain whitespace", id)
	}
	return nil
}

// Draft validates the user-supplied fields of a new notification, reporting
// each bad field as a criterio field error.
func Draft(title, typ string) error {
	return criterio.ValidateStruct(
		criterio.Run("title", title, Title),
		criterio.Run("type", typ, Type),
	)
}
