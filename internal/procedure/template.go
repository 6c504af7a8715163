// Package procedure implements the tenant-defined workflow state machine:
// trigger matching, template interpolation, conditional evaluation, and
// step execution against HTTP and MCP data connectors.
package procedure

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches {{path.to.var}} tokens.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Interpolate replaces every {{path.to.var}} token in template with the
// value found by walking vars along its dot-segments. Unresolved
// placeholders are left literal.
func Interpolate(template string, vars map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		val, ok := resolvePath(vars, strings.Split(path, "."))
		if !ok {
			return match
		}
		return fmt.Sprint(val)
	})
}

func resolvePath(vars map[string]any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return nil, false
	}
	cur, ok := vars[segments[0]]
	if !ok {
		return nil, false
	}
	for _, seg := range segments[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath writes value into vars at the dot-segment path, creating nested
// maps as needed (e.g. "order.total" creates vars["order"]["total"]).
func setPath(vars map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	cur := vars
	for _, seg := range segments[:len(segments)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segments[len(segments)-1]] = value
}

var conditionPattern = regexp.MustCompile(`^(.*?)\s*(>=|<=|==|!=|>|<)\s*(.*)$`)

// EvalCondition interpolates both sides of "left OP right" and compares them
// numerically when both parse as numbers, otherwise as strings (only ==/!=
// are meaningful for strings). Malformed expressions evaluate to false.
func EvalCondition(expr string, vars map[string]any) bool {
	m := conditionPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return false
	}
	left := Interpolate(strings.TrimSpace(m[1]), vars)
	op := m[2]
	right := Interpolate(strings.TrimSpace(m[3]), vars)

	lf, lerr := strconv.ParseFloat(left, 64)
	rf, rerr := strconv.ParseFloat(right, 64)
	if lerr == nil && rerr == nil {
		switch op {
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		case "==":
			return lf == rf
		case "!=":
			return lf != rf
		}
		return false
	}
	switch op {
	case "==":
		return left == right
	case "!=":
		return left != right
	default:
		return false
	}
}
