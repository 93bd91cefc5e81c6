package gmqb

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Matches reports whether doc satisfies filter, per the semantics of
// MongoDB's query matching: top-level fields are implicitly ANDed, and a
// predicate against a field whose document value is a sequence is matched
// against the sequence itself or, failing that, broadcast across each of
// its elements.
//
// See: https://www.mongodb.com/docs/manual/tutorial/query-documents/
func Matches(filter bson.D, doc bson.D) bool {
	for _, e := range filter {
		if !matchEntry(e.Key, e.Value, doc) {
			return false
		}
	}
	return true
}

// Matches reports whether doc satisfies f.
func (f Filter) Matches(doc bson.D) bool {
	return Matches(f.d, doc)
}

// matchEntry evaluates a single top-level filter entry, dispatching logical
// operator keys ($and/$or/$nor/$not at this position is invalid per Mongo
// and is treated as an operator document against a synthetic field) before
// falling back to field matching.
func matchEntry(key string, cond interface{}, doc bson.D) bool {
	switch key {
	case opAnd:
		for _, sub := range asA(cond) {
			if !Matches(asD(sub), doc) {
				return false
			}
		}
		return true
	case opOr:
		arr := asA(cond)
		if len(arr) == 0 {
			return true
		}
		for _, sub := range arr {
			if Matches(asD(sub), doc) {
				return true
			}
		}
		return false
	case opNor:
		for _, sub := range asA(cond) {
			if Matches(asD(sub), doc) {
				return false
			}
		}
		return true
	case opExpr, opWhere, opJSONSchema, opText, opComment:
		// Not evaluated: these require a scripting engine, JSON-schema
		// validator, or full-text index the matcher does not implement.
		// Permissive per the unknown-operator rule: they never fail a match.
		return true
	default:
		return matchField(key, cond, doc)
	}
}

// matchField evaluates a field-level predicate. If cond is a bson.D whose
// every key is an operator ($-prefixed), each operator is evaluated in turn;
// otherwise cond is treated as a literal equality value.
func matchField(field string, cond interface{}, doc bson.D) bool {
	actual := Get(doc, field)

	if d, ok := cond.(bson.D); ok && isOperatorDoc(d) {
		var regexOptions string
		for _, op := range d {
			if op.Key == opOptions {
				regexOptions, _ = op.Value.(string)
			}
		}
		for _, op := range d {
			if op.Key == opRegex {
				pattern := op.Value
				if !matchValueOrBroadcast(actual, func(v interface{}) bool {
					return evalRegex(v, pattern, regexOptions)
				}) {
					return false
				}
				continue
			}
			if !evalOperator(op.Key, op.Value, actual, doc, field) {
				return false
			}
		}
		return true
	}

	return matchValueOrBroadcast(actual, func(v interface{}) bool {
		return DeepEqual(v, cond)
	})
}

// isOperatorDoc reports whether every key in d is a $-prefixed operator,
// distinguishing { $gt: 5 } from a literal embedded-document equality value.
func isOperatorDoc(d bson.D) bool {
	if len(d) == 0 {
		return false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return false
		}
	}
	return true
}

// matchValueOrBroadcast applies pred to actual directly; if that fails and
// actual is a sequence, it retries pred against each element (the array
// broadcast rule).
func matchValueOrBroadcast(actual interface{}, pred func(interface{}) bool) bool {
	if pred(actual) {
		return true
	}
	if isSequence(actual) {
		for _, elem := range asA(actual) {
			if pred(elem) {
				return true
			}
		}
	}
	return false
}

// evalOperator evaluates a single query operator against actual, the
// resolved value at field, with doc and field available for operators that
// need the whole document ($elemMatch) or re-resolution.
func evalOperator(op string, arg interface{}, actual interface{}, doc bson.D, field string) bool {
	switch op {
	case opEq:
		return matchValueOrBroadcast(actual, func(v interface{}) bool { return DeepEqual(v, arg) })
	case opNe:
		return !matchValueOrBroadcast(actual, func(v interface{}) bool { return DeepEqual(v, arg) })
	case opGt:
		return matchValueOrBroadcast(actual, func(v interface{}) bool { return comparableKinds(v, arg) && Compare(v, arg) > 0 })
	case opGte:
		return matchValueOrBroadcast(actual, func(v interface{}) bool { return comparableKinds(v, arg) && Compare(v, arg) >= 0 })
	case opLt:
		return matchValueOrBroadcast(actual, func(v interface{}) bool { return comparableKinds(v, arg) && Compare(v, arg) < 0 })
	case opLte:
		return matchValueOrBroadcast(actual, func(v interface{}) bool { return comparableKinds(v, arg) && Compare(v, arg) <= 0 })
	case opIn:
		set := asA(arg)
		return matchValueOrBroadcast(actual, func(v interface{}) bool {
			for _, s := range set {
				if DeepEqual(v, s) {
					return true
				}
			}
			return false
		})
	case opNin:
		set := asA(arg)
		return !matchValueOrBroadcast(actual, func(v interface{}) bool {
			for _, s := range set {
				if DeepEqual(v, s) {
					return true
				}
			}
			return false
		})
	case opExists:
		want, _ := arg.(bool)
		return IsMissing(actual) != want
	case opNot:
		if d, ok := arg.(bson.D); ok {
			for _, sub := range d {
				if evalOperator(sub.Key, sub.Value, actual, doc, field) {
					return false
				}
			}
			return true
		}
		return !DeepEqual(actual, arg)
	case opRegex:
		return matchValueOrBroadcast(actual, func(v interface{}) bool {
			return evalRegex(v, arg, "")
		})
	case opSize:
		n, ok := asFloat(arg)
		if !ok || !isSequence(actual) {
			return false
		}
		return float64(len(asA(actual))) == n
	case opAll:
		if !isSequence(actual) {
			return false
		}
		elems := asA(actual)
		for _, want := range asA(arg) {
			found := false
			for _, have := range elems {
				if DeepEqual(have, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case opElemMatch:
		if !isSequence(actual) {
			return false
		}
		sub := asD(arg)
		for _, elem := range asA(actual) {
			if elemDoc, ok := elem.(bson.D); ok {
				if Matches(sub, elemDoc) {
					return true
				}
				continue
			}
			if isOperatorDoc(sub) {
				match := true
				for _, op2 := range sub {
					if !evalOperator(op2.Key, op2.Value, elem, doc, field) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
		return false
	case opOptions:
		// Consumed alongside $regex; never evaluated standalone.
		return true
	case opType, opMod, opBitsAllClear, opBitsAllSet, opBitsAnyClear,
		opBitsAnySet, opGeoWithin, opGeoIntersects, opNear, opNearSphere:
		// Buildable for wire compatibility but not required to evaluate;
		// permissive per the unknown-operator rule.
		return true
	default:
		return true
	}
}

// comparableKinds reports whether a and b belong to type classes MongoDB
// considers order-comparable against each other (same type rank); cross-type
// comparisons such as number vs string never satisfy $gt/$lt.
func comparableKinds(a, b interface{}) bool {
	return typeRank(a) == typeRank(b)
}

// evalRegex evaluates a $regex/$options pair. pattern may itself already be
// a compiled bson.Regex; options, if non-empty, is combined as inline flags.
func evalRegex(actual interface{}, pattern interface{}, options string) bool {
	s, ok := actual.(string)
	if !ok {
		return false
	}
	var expr string
	switch p := pattern.(type) {
	case string:
		expr = p
	case bson.Regex:
		expr = p.Pattern
		if options == "" {
			options = p.Options
		}
	default:
		return false
	}
	// Go's regexp knows i/m/s but not x (extended mode); an unsupported
	// flag must not poison the whole pattern, so only the known ones are
	// forwarded as inline flags.
	var flags strings.Builder
	for _, f := range options {
		if f == 'i' || f == 'm' || f == 's' {
			flags.WriteRune(f)
		}
	}
	if flags.Len() > 0 {
		expr = "(?" + flags.String() + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
