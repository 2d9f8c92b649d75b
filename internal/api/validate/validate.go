package validate

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/token-contests/internal/models"
)

// Errs collects request-shape problems before the core is called.
type Errs []models.FieldError

func (e *Errs) Add(f *models.FieldError) {
	if f != nil {
		*e = append(*e, *f)
	}
}

// Err returns a validation error carrying the collected fields, or nil.
func (e Errs) Err(op string) error {
	if len(e) == 0 {
		return nil
	}
	return models.Validation(op, e...)
}

// Helpers
func Required(field, value string) *models.FieldError {
	if strings.TrimSpace(value) == "" {
		return &models.FieldError{Field: field, Msg: "required"}
	}
	return nil
}

// Decimal parses value into dst. Blank values are reported as required.
func Decimal(field, value string, dst *decimal.Decimal) *models.FieldError {
	if f := Required(field, value); f != nil {
		return f
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return &models.FieldError{Field: field, Msg: "not a decimal"}
	}
	*dst = d
	return nil
}

// Time parses an optional RFC 3339 timestamp into dst.
func Time(field, value string, dst *time.Time) *models.FieldError {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return &models.FieldError{Field: field, Msg: "must be RFC 3339"}
	}
	*dst = t
	return nil
}
