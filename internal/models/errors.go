package models

import (
	"errors"
	"strings"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrState               = errors.New("illegal state transition")
	ErrArithmetic          = errors.New("arithmetic error")
)

type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// Error carries the kind of a core failure plus the operation that produced it.
type Error struct {
	Kind   error
	Op     string
	Msg    string
	Fields []FieldError
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(" (")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.Field + ": " + f.Msg)
		if i == len(e.Fields)-1 {
			b.WriteString(")")
		}
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

func Validation(op string, fields ...FieldError) error {
	return &Error{Kind: ErrValidation, Op: op, Fields: fields}
}

func InsufficientBalance(op, msg string) error {
	return &Error{Kind: ErrInsufficientBalance, Op: op, Msg: msg}
}

func NotFound(op, msg string) error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: msg}
}

func StateErr(op, msg string) error {
	return &Error{Kind: ErrState, Op: op, Msg: msg}
}

func Arithmetic(op, msg string) error {
	return &Error{Kind: ErrArithmetic, Op: op, Msg: msg}
}

// FieldsOf returns the field errors attached to err, if any.
func FieldsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
