package service

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sakif/entity-auth/internal/apperror"
)

// Password length bounds for user input. The upper bound is bcrypt's.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

var passwordRules = []validation.Rule{
	validation.Required,
	validation.Length(MinPasswordLength, MaxPasswordLength),
}

// invalid turns ozzo's per-field error map into an apperror validation
// error for the first offending field (alphabetically, so it's stable).
// Anything that isn't a validation.Errors passes through unchanged.
func invalid(err error) error {
	if err == nil {
		return nil
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}

	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	first := fields[0]
	return apperror.ValidationFailed(first, first+": "+errs[first].Error())
}
