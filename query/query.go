// Package query parses the single-filter selector language accepted by
// read and live subscriptions:
//
//	?field operator value
//
// e.g. "?age > 21" or "?name == Alice". The value is a float64 when it
// parses as a finite decimal number and a string otherwise.
package query

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnsupported is wrapped by every ParseError.
var ErrUnsupported = errors.New("unsupported operation")

// ParseError reports a selector that is not a single binary comparison.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("query %q: %v: %s", e.Input, ErrUnsupported, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrUnsupported }

// Expression is a parsed filter.
//
// This is a sealed interface: only types in this package implement it,
// so consumers can switch over the variants exhaustively. Comparison is
// the only variant produced today.
type Expression interface {
	expressionNode()
	String() string
}

// Comparison is a single binary predicate: Field Operator Value.
type Comparison struct {
	Field    string
	Operator string
	Value    any // float64 or string
}

func (Comparison) expressionNode() {}

// String renders the comparison back into selector form.
func (c Comparison) String() string {
	v := fmt.Sprint(c.Value)
	if f, ok := c.Value.(float64); ok {
		v = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return "?" + c.Field + " " + c.Operator + " " + v
}

// IsFilter reports whether a selector is a filter expression rather than
// a document ID.
func IsFilter(selector string) bool {
	return strings.HasPrefix(selector, "?")
}

// Parse turns a selector into an Expression.
func Parse(s string) (Expression, error) {
	tokens := strings.Fields(s)
	if len(tokens) > 0 {
		tokens[0] = strings.TrimPrefix(tokens[0], "?")
	}
	if len(tokens) != 3 {
		return nil, &ParseError{Input: s, Reason: fmt.Sprintf("expected 3 tokens, got %d", len(tokens))}
	}
	if tokens[0] == "" {
		return nil, &ParseError{Input: s, Reason: "empty field"}
	}
	return Comparison{
		Field:    tokens[0],
		Operator: tokens[1],
		Value:    coerce(tokens[2]),
	}, nil
}

// coerce returns tok as a float64 when the whole token is a finite
// decimal number. Hexadecimal literals stay strings.
func coerce(tok string) any {
	digits := strings.TrimLeft(tok, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return tok
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return tok
	}
	return f
}
