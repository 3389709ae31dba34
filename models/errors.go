package models

import (
	"errors"
	"fmt"
)

var (
	ErrUnparsableField   = errors.New("unparsable field")
	ErrFeatureMismatch   = errors.New("feature mismatch")
	ErrShape             = errors.New("out-of-contract record shape")
	ErrDuplicate         = errors.New("duplicate listing")
	ErrInvalidPrediction = errors.New("invalid prediction")
	ErrModelLoad         = errors.New("model load failure")
	ErrErrorTableLoad    = errors.New("error table load failure")
	ErrNoListings        = errors.New("no listings to evaluate")
	ErrInvalidThresholds = errors.New("invalid vfm thresholds")
)

// FieldError reports a raw field that could not be coerced to its type.
type FieldError struct {
	Field string
	Value string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("unparsable field %s: %q", e.Field, e.Value)
}

func (e *FieldError) Unwrap() error { return ErrUnparsableField }

// ShapeError reports a record field whose JSON shape is outside the contract.
type ShapeError struct {
	Field string
	Kind  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("field %s has unsupported shape %s", e.Field, e.Kind)
}

func (e *ShapeError) Unwrap() error { return ErrShape }

// MismatchError reports a feature vector that does not fit the model.
type MismatchError struct {
	Column string
	Reason string
}

func (e *MismatchError) Error() string {
	if e.Column == "" {
		return "feature mismatch: " + e.Reason
	}
	return fmt.Sprintf("feature mismatch on %s: %s", e.Column, e.Reason)
}

func (e *MismatchError) Unwrap() error { return ErrFeatureMismatch }

// Reason returns a short, stable reason code for counting rejections.
func Reason(err error) string {
	var fe *FieldError
	var se *ShapeError
	var me *MismatchError
	switch {
	case errors.As(err, &fe):
		return "UnparsableField(" + fe.Field + ")"
	case errors.As(err, &se):
		return "ShapeError(" + se.Field + ")"
	case errors.As(err, &me):
		if me.Column == "" {
			return "FeatureMismatch"
		}
		return "FeatureMismatch(" + me.Column + ")"
	case errors.Is(err, ErrDuplicate):
		return "Duplicate"
	case errors.Is(err, ErrInvalidPrediction):
		return "InvalidPrediction"
	case err == nil:
		return ""
	default:
		return "Other"
	}
}
