package upstream

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Expr is one node of a $filter expression. Expressions are built with the
// constructors below and rendered once with Render; string values are only
// escaped in one place, so a listing agent named O'Brien cannot break the
// query no matter which predicate the value reaches.
type Expr interface {
	write(sb *strings.Builder)
}

// Render serializes an expression into the upstream filter grammar.
func Render(e Expr) string {
	if e == nil {
		return ""
	}

	var sb strings.Builder
	e.write(&sb)

	return sb.String()
}

type compareExpr struct {
	field string
	op    string
	value any
}

func (e compareExpr) write(sb *strings.Builder) {
	sb.WriteString(e.field)
	sb.WriteByte(' ')
	sb.WriteString(e.op)
	sb.WriteByte(' ')
	sb.WriteString(literal(e.value))
}

// Eq matches field eq value.
func Eq(field string, value any) Expr {
	return compareExpr{field: field, op: "eq", value: value}
}

// Gt matches field gt value.
func Gt(field string, value any) Expr {
	return compareExpr{field: field, op: "gt", value: value}
}

// Ge matches field ge value.
func Ge(field string, value any) Expr {
	return compareExpr{field: field, op: "ge", value: value}
}

// Lt matches field lt value.
func Lt(field string, value any) Expr {
	return compareExpr{field: field, op: "lt", value: value}
}

// Le matches field le value.
func Le(field string, value any) Expr {
	return compareExpr{field: field, op: "le", value: value}
}

type foldExpr struct {
	field string
	value string
}

func (e foldExpr) write(sb *strings.Builder) {
	sb.WriteString("tolower(")
	sb.WriteString(e.field)
	sb.WriteString(") eq ")
	sb.WriteString(literal(strings.ToLower(e.value)))
}

// EqFold matches field eq value ignoring case, lowering both sides.
func EqFold(field, value string) Expr {
	return foldExpr{field: field, value: value}
}

type inExpr struct {
	field  string
	values []string
}

func (e inExpr) write(sb *strings.Builder) {
	sb.WriteString(e.field)
	sb.WriteString(" in (")
	for i, v := range e.values {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(literal(v))
	}
	sb.WriteByte(')')
}

// In matches field against any of the given values.
func In(field string, values ...string) Expr {
	return inExpr{field: field, values: values}
}

type anyExpr struct {
	field string
	value string
}

func (e anyExpr) write(sb *strings.Builder) {
	sb.WriteString(e.field)
	sb.WriteString("/any(x: x eq ")
	sb.WriteString(literal(e.value))
	sb.WriteByte(')')
}

// AnyEq matches collection-valued fields that contain the given value.
func AnyEq(field, value string) Expr {
	return anyExpr{field: field, value: value}
}

type andExpr struct {
	parts []Expr
}

func (e andExpr) write(sb *strings.Builder) {
	first := true
	for _, p := range e.parts {
		if p == nil {
			continue
		}
		if !first {
			sb.WriteString(" and ")
		}
		p.write(sb)
		first = false
	}
}

// And conjoins the given expressions, skipping nil parts so callers can
// build conditional predicates without branching.
func And(parts ...Expr) Expr {
	return andExpr{parts: parts}
}

// literal renders a filter operand. Strings are single-quoted with embedded
// quotes doubled; timestamps, booleans and numbers stay unquoted.
func literal(value any) string {
	switch v := value.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
