package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	FieldName         = "name"
	FieldStartedAt    = "started_at"
	FieldEndedAt      = "ended_at"
	FieldIsContinuous = "is_continuous"

	maxNameLength = 200
)

const (
	KindOpen       IncomeKind = iota // not continuous, no end month yet
	KindBounded                      // not continuous, end month set
	KindContinuous                   // no defined end
)

type (
	IncomeKind int

	Income struct {
		ID           int64 // Database ID, 0 until persisted
		Name         string
		Description  string
		StartedAt    Month
		EndedAt      *Month // nil means absent
		IsContinuous bool
		CreatedAt    time.Time
		UpdatedAt    time.Time
		Version      int64 // bumped by the store on every write
	}

	// ValidationError is a rejected-input error tied to a single field.
	ValidationError struct {
		Code    string
		Field   string
		Message string
		Err     error
	}
)

var (
	ErrInvalidContinuousEnd = errors.New("invalid continuous end")
	ErrInvalidEndDate       = errors.New("invalid end date")
	ErrEmptyName            = errors.New("empty name")
	ErrNameTooLong          = errors.New("name too long")
	ErrMissingStart         = errors.New("missing start month")
	ErrInvalidMonth         = errors.New("invalid month")

	// ErrNotFound is returned by stores for unknown income ids
	ErrNotFound = errors.New("income not found")
)

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(code, field, msg string, err error) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: msg, Err: err}
}

// Validate checks field-level constraints and the cross-field rules between
// IsContinuous, StartedAt and EndedAt. The first violation is returned as a
// *ValidationError.
func (in Income) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return newValidationError("empty_name", FieldName, "name is required.", ErrEmptyName)
	}
	if len([]rune(in.Name)) > maxNameLength {
		return newValidationError("name_too_long", FieldName,
			fmt.Sprintf("name must be at most %d characters.", maxNameLength), ErrNameTooLong)
	}
	if err := in.StartedAt.Validate(); err != nil {
		return newValidationError("missing_start", FieldStartedAt, "a valid start month is required.", ErrMissingStart)
	}
	if in.EndedAt != nil {
		if err := in.EndedAt.Validate(); err != nil {
			return newValidationError("invalid_month", FieldEndedAt, "the end month is not a valid month.", ErrInvalidMonth)
		}
	}

	if in.IsContinuous && in.EndedAt != nil {
		return newValidationError("invalid_continuous_end", FieldIsContinuous,
			"a continuous income cannot have a defined end month.", ErrInvalidContinuousEnd)
	}

	if !in.IsContinuous && in.EndedAt != nil {
		if in.EndedAt.Before(in.StartedAt) {
			return newValidationError("invalid_end_date", FieldEndedAt,
				"the end month cannot precede the start month.", ErrInvalidEndDate)
		}
	}

	return nil
}

// Normalize clears EndedAt for continuous incomes. It must only run on a
// record that already passed Validate.
func (in *Income) Normalize() {
	if in.IsContinuous {
		in.EndedAt = nil
	}
}

// Kind classifies the income by its temporal fields
func (in Income) Kind() IncomeKind {
	switch {
	case in.IsContinuous:
		return KindContinuous
	case in.EndedAt != nil:
		return KindBounded
	default:
		return KindOpen
	}
}

func (k IncomeKind) String() string {
	switch k {
	case KindContinuous:
		return "continuous"
	case KindBounded:
		return "bounded"
	default:
		return "open"
	}
}

// ActiveIn reports whether the income covers month m.
func (in Income) ActiveIn(m Month) bool {
	if m.Before(in.StartedAt) {
		return false
	}
	if in.Kind() == KindBounded {
		return !m.After(*in.EndedAt)
	}
	return true
}

// Months lists every covered month from StartedAt up to and including until.
func (in Income) Months(until Month) []Month {
	var out []Month
	for m := in.StartedAt; !m.After(until); m = m.AddMonths(1) {
		if !in.ActiveIn(m) {
			break
		}
		out = append(out, m)
	}
	return out
}

// String returns the label shown to users, e.g. "Freela (01/2024 - 06/2024)".
func (in Income) String() string {
	started := in.StartedAt.Format()

	if in.IsContinuous {
		return fmt.Sprintf("%s (Desde %s - Contínua)", in.Name, started)
	}

	if in.EndedAt != nil {
		if in.StartedAt.Equal(*in.EndedAt) {
			return fmt.Sprintf("%s (%s)", in.Name, started)
		}
		return fmt.Sprintf("%s (%s - %s)", in.Name, started, in.EndedAt.Format())
	}

	return fmt.Sprintf("%s (%s - Erro de data)", in.Name, started)
}
