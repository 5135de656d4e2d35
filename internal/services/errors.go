package services

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds. A routing miss is not an error and has no marker.
var (
	ErrFetch     = errors.New("fetch")
	ErrConvert   = errors.New("convert")
	ErrPublish   = errors.New("publish")
	ErrSecondary = errors.New("secondary")
)

// Wrap tags err with a failure kind and the stage context it happened in.
// The result reads "<kind>: <stage>: <op>: <cause>" and matches both the
// marker and err under errors.Is.
func Wrap(kind error, stage, op string, err error) error {
	if kind == nil {
		kind = ErrConvert
	}
	parts := make([]string, 0, 2)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, op)
	}
	detail := strings.Join(parts, ": ")
	switch {
	case err != nil && detail != "":
		return fmt.Errorf("%w: %s: %w", kind, detail, err)
	case err != nil:
		return fmt.Errorf("%w: %w", kind, err)
	case detail != "":
		return fmt.Errorf("%w: %s", kind, detail)
	default:
		return kind
	}
}

// Kind returns the failure marker carried by err, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrFetch, ErrConvert, ErrPublish, ErrSecondary} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
