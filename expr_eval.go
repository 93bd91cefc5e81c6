package gmqb

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Vars holds let-bound variables visible to an expression, looked up by a
// leading "$$" reference. Vars is threaded through nested expression
// evaluation ($lookup pipeline scope, $let bindings).
type Vars map[string]interface{}

// EvalExpr evaluates an aggregation expression against the current
// document: a `$field` path, a `$$var` reference, a `{$literal:
// v}` escape, a `{$op: args}` operator call, a plain mapping evaluated
// key-by-key, or any other value taken as a literal.
func EvalExpr(expr interface{}, doc bson.D, vars Vars) (interface{}, error) {
	switch e := expr.(type) {
	case string:
		if strings.HasPrefix(e, "$$") {
			return evalVarRef(e[2:], vars), nil
		}
		if strings.HasPrefix(e, "$") {
			return Get(doc, e[1:]), nil
		}
		return e, nil
	case bson.D:
		if len(e) == 1 && strings.HasPrefix(e[0].Key, "$") {
			return evalOperatorExpr(e[0].Key, e[0].Value, doc, vars)
		}
		out := make(bson.D, 0, len(e))
		for _, entry := range e {
			v, err := EvalExpr(entry.Value, doc, vars)
			if err != nil {
				return nil, err
			}
			out = append(out, bson.E{Key: entry.Key, Value: v})
		}
		return out, nil
	case bson.A:
		out := make(bson.A, len(e))
		for i, v := range e {
			r, err := EvalExpr(v, doc, vars)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case []interface{}:
		return EvalExpr(bson.A(e), doc, vars)
	default:
		return expr, nil
	}
}

func evalVarRef(name string, vars Vars) interface{} {
	segs := strings.SplitN(name, ".", 2)
	if vars == nil {
		return Missing
	}
	v, ok := vars[segs[0]]
	if !ok {
		return Missing
	}
	if len(segs) == 1 {
		return v
	}
	if d, ok := v.(bson.D); ok {
		return Get(d, segs[1])
	}
	return Missing
}

// evalArgs evaluates args (usually a bson.A of operand expressions, but
// operators that take a single operand pass it bare) and normalizes the
// result to a slice for operators expecting a fixed arity.
func evalArgs(args interface{}, doc bson.D, vars Vars) ([]interface{}, error) {
	arr, ok := args.(bson.A)
	if !ok {
		if a2, ok2 := args.([]interface{}); ok2 {
			arr = bson.A(a2)
		} else {
			v, err := EvalExpr(args, doc, vars)
			if err != nil {
				return nil, err
			}
			return []interface{}{v}, nil
		}
	}
	out := make([]interface{}, len(arr))
	for i, a := range arr {
		v, err := EvalExpr(a, doc, vars)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func truthy(v interface{}) bool {
	switch b := v.(type) {
	case nil, missingType:
		return false
	case bool:
		return b
	default:
		return true
	}
}

// evalOperatorExpr evaluates a single `{$op: args}` call. Unknown operators
// evaluate to their (evaluated) argument unchanged. The caller
// (aggregate.go's $group path) is responsible for rejecting unknown
// operators in the strict accumulator context.
func evalOperatorExpr(op string, args interface{}, doc bson.D, vars Vars) (interface{}, error) {
	if op == opLiteral {
		return args, nil
	}

	switch op {
	case opEq, opNe, opGt, opGte, opLt, opLte, opCmp:
		a, err := evalArgs(args, doc, vars)
		if err != nil {
			return nil, err
		}
		if len(a) != 2 {
			return nil, newErr(KindInvalidOperation, nil, "%s requires exactly 2 arguments", op)
		}
		c := Compare(a[0], a[1])
		switch op {
		case opEq:
			return c == 0, nil
		case opNe:
			return c != 0, nil
		case opGt:
			return c > 0, nil
		case opGte:
			return c >= 0, nil
		case opLt:
			return c < 0, nil
		case opLte:
			return c <= 0, nil
		case opCmp:
			switch {
			case c < 0:
				return int64(-1), nil
			case c > 0:
				return int64(1), nil
			default:
				return int64(0), nil
			}
		}
	case opAnd:
		a, err := evalArgs(args, doc, vars)
		if err != nil {
			return nil, err
		}
		for _, v := range a {
			if !truthy(v) {
				return false, nil
			}
		}
		return true, nil
	case opOr:
		a, err := evalArgs(args, doc, vars)
		if err != nil {
			return nil, err
		}
		for _, v := range a {
			if truthy(v) {
				return true, nil
			}
		}
		return false, nil
	case opNot:
		a, err := evalArgs(args, doc, vars)
		if err != nil {
			return nil, err
		}
		if len(a) != 1 {
			return nil, newErr(KindInvalidOperation, nil, "$not requires exactly 1 argument")
		}
		return !truthy(a[0]), nil
	case opConcat:
		a, err := evalArgs(args, doc, vars)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		for _, v := range a {
			if IsMissing(v) || v == nil {
				return nil, nil
			}
			s, ok := v.(string)
			if !ok {
				return nil, newErr(KindInvalidOperation, nil, "$concat requires string operands")
			}
			sb.WriteString(s)
		}
		return sb.String(), nil
	case opAdd:
		return arithmeticReduce(args, doc, vars, 0, func(acc, v float64) float64 { return acc + v })
	case opSubtract:
		a, err := evalArgs(args, doc, vars)
		if err != nil {
			return nil, err
		}
		if len(a) != 2 {
			return nil, newErr(KindInvalidOperation, nil, "$subtract requires exactly 2 arguments")
		}
		x, ok1 := asFloat(a[0])
		y, ok2 := asFloat(a[1])
		if !ok1 || !ok2 {
			return nil, newErr(KindInvalidOperation, nil, "$subtract requires numeric operands")
		}
		return numericResult(x-y, a[0], a[1]), nil
	case opMultiply:
		return arithmeticReduce(args, doc, vars, 1, func(acc, v float64) float64 { return acc * v })
	case opDivide:
		a, err := evalArgs(args, doc, vars)
		if err != nil {
			return nil, err
		}
		if len(a) != 2 {
			return nil, newErr(KindInvalidOperation, nil, "$divide requires exactly 2 arguments")
		}
		x, ok1 := asFloat(a[0])
		y, ok2 := asFloat(a[1])
		if !ok1 || !ok2 {
			return nil, newErr(KindInvalidOperation, nil, "$divide requires numeric operands")
		}
		if y == 0 {
			return nil, newErr(KindInvalidOperation, nil, "$divide by zero")
		}
		return x / y, nil
	case opYear, opMonth:
		a, err := evalArgs(args, doc, vars)
		if err != nil {
			return nil, err
		}
		if len(a) != 1 {
			return nil, newErr(KindInvalidOperation, nil, "%s requires exactly 1 argument", op)
		}
		t, ok := asTime(a[0])
		if !ok {
			return nil, newErr(KindInvalidOperation, nil, "%s requires a date operand", op)
		}
		t = t.UTC()
		if op == opYear {
			return int64(t.Year()), nil
		}
		return int64(t.Month()), nil
	case opCond:
		return evalCond(args, doc, vars)
	case opIfNull:
		a, err := evalArgs(args, doc, vars)
		if err != nil {
			return nil, err
		}
		for i, v := range a {
			if i == len(a)-1 {
				return v, nil
			}
			if !IsMissing(v) && v != nil {
				return v, nil
			}
		}
		return nil, nil
	case opSwitch:
		return evalSwitch(args, doc, vars)
	case opLet:
		return evalLet(args, doc, vars)
	default:
		// Permissive: evaluate and pass through the argument unchanged.
		return EvalExpr(args, doc, vars)
	}
	return nil, fmt.Errorf("gmqb: unreachable operator dispatch for %s", op)
}

func arithmeticReduce(args interface{}, doc bson.D, vars Vars, init float64, fn func(acc, v float64) float64) (interface{}, error) {
	a, err := evalArgs(args, doc, vars)
	if err != nil {
		return nil, err
	}
	acc := init
	allInt := true
	for _, v := range a {
		f, ok := asFloat(v)
		if !ok {
			if t, ok := asTime(v); ok {
				f = float64(t.UnixMilli())
			} else {
				return nil, newErr(KindInvalidOperation, nil, "arithmetic operator requires numeric operands")
			}
		}
		if !isIntegral(v) {
			allInt = false
		}
		acc = fn(acc, f)
	}
	if allInt {
		return int64(acc), nil
	}
	return acc, nil
}

func evalCond(args interface{}, doc bson.D, vars Vars) (interface{}, error) {
	var ifExpr, thenExpr, elseExpr interface{}
	switch a := args.(type) {
	case bson.D:
		for _, e := range a {
			switch e.Key {
			case "if":
				ifExpr = e.Value
			case "then":
				thenExpr = e.Value
			case "else":
				elseExpr = e.Value
			}
		}
	case bson.A:
		if len(a) != 3 {
			return nil, newErr(KindInvalidOperation, nil, "$cond array form requires 3 elements")
		}
		ifExpr, thenExpr, elseExpr = a[0], a[1], a[2]
	default:
		return nil, newErr(KindInvalidOperation, nil, "$cond requires a document or 3-element array")
	}
	cond, err := EvalExpr(ifExpr, doc, vars)
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return EvalExpr(thenExpr, doc, vars)
	}
	return EvalExpr(elseExpr, doc, vars)
}

func evalSwitch(args interface{}, doc bson.D, vars Vars) (interface{}, error) {
	d := asD(args)
	var branches bson.A
	var defaultExpr interface{}
	hasDefault := false
	for _, e := range d {
		switch e.Key {
		case "branches":
			branches = asA(e.Value)
		case "default":
			defaultExpr = e.Value
			hasDefault = true
		}
	}
	for _, b := range branches {
		bd := asD(b)
		var caseExpr, thenExpr interface{}
		for _, e := range bd {
			switch e.Key {
			case "case":
				caseExpr = e.Value
			case "then":
				thenExpr = e.Value
			}
		}
		v, err := EvalExpr(caseExpr, doc, vars)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			return EvalExpr(thenExpr, doc, vars)
		}
	}
	if hasDefault {
		return EvalExpr(defaultExpr, doc, vars)
	}
	return nil, newErr(KindInvalidOperation, nil, "$switch: no branch matched and no default")
}

func evalLet(args interface{}, doc bson.D, vars Vars) (interface{}, error) {
	d := asD(args)
	var varsSpec bson.D
	var in interface{}
	for _, e := range d {
		switch e.Key {
		case "vars":
			varsSpec = asD(e.Value)
		case "in":
			in = e.Value
		}
	}
	child := make(Vars, len(vars)+len(varsSpec))
	for k, v := range vars {
		child[k] = v
	}
	for _, e := range varsSpec {
		v, err := EvalExpr(e.Value, doc, vars)
		if err != nil {
			return nil, err
		}
		child[e.Key] = v
	}
	return EvalExpr(in, doc, child)
}
