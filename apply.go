package gmqb

import (
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// applyOrder is the stable order in which update operators are applied to a
// document, regardless of the order they were chained onto the Updater.
// $rename must run before $unset/$set can see the renamed field; $push runs
// before $pop, $pull and $pullAll, so those see the elements it added.
var applyOrder = []string{
	opRename, opUnset, opSet, opSetOnInsert, opInc, opMul, opMin, opMax,
	opCurrentDate, opAddToSet, opPush, opPop, opPull, opPullAll, opBit,
}

// Apply runs the update document against doc, returning the resulting
// document, whether any operator actually changed it, and an error if the
// update document is empty or structurally invalid. isInsert selects whether
// $setOnInsert entries are applied.
func (u Updater) Apply(doc bson.D, isInsert bool) (bson.D, bool, error) {
	return Apply(u.ops, doc, isInsert)
}

// Apply is the free-function form of Updater.Apply, operating directly on
// the raw bson.D update operator document.
func Apply(ops bson.D, doc bson.D, isInsert bool) (bson.D, bool, error) {
	if len(ops) == 0 {
		return doc, false, newErr(KindInvalidOperation, ErrEmptyUpdate, "update document has no operators")
	}

	byOp := make(map[string]bson.D, len(ops))
	for _, e := range ops {
		d, ok := e.Value.(bson.D)
		if !ok {
			return doc, false, newErr(KindInvalidOperation, nil, "operator %q value must be a document", e.Key)
		}
		for _, f := range d {
			if targetsID(e.Key, f, isInsert) {
				return doc, false, newErr(KindInvalidOperation, nil, "%s on _id is forbidden", e.Key)
			}
		}
		byOp[e.Key] = d
	}

	out := cloneD(doc)
	changed := false

	for _, op := range applyOrder {
		fields, ok := byOp[op]
		if !ok {
			continue
		}
		delete(byOp, op)
		if op == opSetOnInsert && !isInsert {
			continue
		}
		var err error
		out, changed, err = applyOp(op, fields, out, changed)
		if err != nil {
			return doc, false, err
		}
	}

	// Any operator key not in applyOrder (e.g. buildable-but-unsupported
	// operators like a future $currentDate variant) is a structural error:
	// the engine must never silently ignore a requested mutation.
	for op := range byOp {
		return doc, false, newErr(KindInvalidOperation, nil, "unsupported update operator %q", op)
	}

	return out, changed, nil
}

// targetsID reports whether an operator field spec would rewrite the
// document's _id. A $setOnInsert of _id during an actual insert is the one
// allowed case; everything else that names _id (including a $rename whose
// destination is _id) is forbidden.
func targetsID(op string, f bson.E, isInsert bool) bool {
	if op == opSetOnInsert && isInsert {
		return false
	}
	if f.Key == "_id" {
		return true
	}
	if op == opRename {
		if to, ok := f.Value.(string); ok && to == "_id" {
			return true
		}
	}
	return false
}

func applyOp(op string, fields bson.D, doc bson.D, changed bool) (bson.D, bool, error) {
	var err error
	switch op {
	case opRename:
		for _, f := range fields {
			newName, _ := f.Value.(string)
			v := Get(doc, f.Key)
			if IsMissing(v) {
				continue
			}
			doc = Unset(doc, f.Key)
			doc, err = Set(doc, newName, v)
			if err != nil {
				return doc, changed, err
			}
			changed = true
		}
	case opUnset:
		for _, f := range fields {
			if !IsMissing(Get(doc, f.Key)) {
				doc = Unset(doc, f.Key)
				changed = true
			}
		}
	case opSet, opSetOnInsert:
		for _, f := range fields {
			doc, err = Set(doc, f.Key, f.Value)
			if err != nil {
				return doc, changed, err
			}
			changed = true
		}
	case opInc:
		for _, f := range fields {
			delta, ok := asFloat(f.Value)
			if !ok {
				return doc, changed, newErr(KindInvalidOperation, nil, "$inc on %q requires a numeric amount", f.Key)
			}
			cur := Get(doc, f.Key)
			base, _ := asFloat(cur)
			if !IsMissing(cur) && !isNumeric(cur) {
				return doc, changed, newErr(KindInvalidOperation, nil, "$inc on %q: existing value is not numeric", f.Key)
			}
			doc, err = Set(doc, f.Key, numericResult(base+delta, cur, f.Value))
			if err != nil {
				return doc, changed, err
			}
			changed = true
		}
	case opMul:
		for _, f := range fields {
			factor, ok := asFloat(f.Value)
			if !ok {
				return doc, changed, newErr(KindInvalidOperation, nil, "$mul on %q requires a numeric amount", f.Key)
			}
			cur := Get(doc, f.Key)
			if IsMissing(cur) {
				doc, err = Set(doc, f.Key, int64(0))
				if err != nil {
					return doc, changed, err
				}
				changed = true
				continue
			}
			base, ok := asFloat(cur)
			if !ok {
				return doc, changed, newErr(KindInvalidOperation, nil, "$mul on %q: existing value is not numeric", f.Key)
			}
			doc, err = Set(doc, f.Key, numericResult(base*factor, cur, f.Value))
			if err != nil {
				return doc, changed, err
			}
			changed = true
		}
	case opMin:
		for _, f := range fields {
			cur := Get(doc, f.Key)
			if IsMissing(cur) || Compare(f.Value, cur) < 0 {
				doc, err = Set(doc, f.Key, f.Value)
				if err != nil {
					return doc, changed, err
				}
				changed = true
			}
		}
	case opMax:
		for _, f := range fields {
			cur := Get(doc, f.Key)
			if IsMissing(cur) || Compare(f.Value, cur) > 0 {
				doc, err = Set(doc, f.Key, f.Value)
				if err != nil {
					return doc, changed, err
				}
				changed = true
			}
		}
	case opCurrentDate:
		now := currentDateTime()
		for _, f := range fields {
			var v interface{} = now
			if d, ok := f.Value.(bson.D); ok {
				for _, e := range d {
					if e.Key == opType && e.Value == "timestamp" {
						v = bson.Timestamp{T: uint32(now.Unix())}
					}
				}
			}
			doc, err = Set(doc, f.Key, v)
			if err != nil {
				return doc, changed, err
			}
			changed = true
		}
	case opAddToSet:
		for _, f := range fields {
			values, _ := eachValues(f.Value)
			cur := Get(doc, f.Key)
			var arr bson.A
			if isSequence(cur) {
				arr = append(bson.A{}, asA(cur)...)
			} else if !IsMissing(cur) {
				return doc, changed, newErr(KindInvalidOperation, nil, "$addToSet on %q: existing value is not an array", f.Key)
			}
			for _, v := range values {
				found := false
				for _, have := range arr {
					if DeepEqual(have, v) {
						found = true
						break
					}
				}
				if !found {
					arr = append(arr, v)
					changed = true
				}
			}
			doc, err = Set(doc, f.Key, arr)
			if err != nil {
				return doc, changed, err
			}
		}
	case opPush:
		for _, f := range fields {
			doc, changed, err = applyPush(doc, f.Key, f.Value, changed)
			if err != nil {
				return doc, changed, err
			}
		}
	case opPop:
		for _, f := range fields {
			cur := Get(doc, f.Key)
			if !isSequence(cur) {
				continue
			}
			arr := asA(cur)
			if len(arr) == 0 {
				continue
			}
			dir, _ := asFloat(f.Value)
			if dir < 0 {
				arr = arr[1:]
			} else {
				arr = arr[:len(arr)-1]
			}
			doc, err = Set(doc, f.Key, append(bson.A{}, arr...))
			if err != nil {
				return doc, changed, err
			}
			changed = true
		}
	case opPull:
		for _, f := range fields {
			cur := Get(doc, f.Key)
			if !isSequence(cur) {
				continue
			}
			result := bson.A{}
			for _, elem := range asA(cur) {
				if matchesPullCondition(elem, f.Value) {
					changed = true
					continue
				}
				result = append(result, elem)
			}
			doc, err = Set(doc, f.Key, result)
			if err != nil {
				return doc, changed, err
			}
		}
	case opPullAll:
		for _, f := range fields {
			cur := Get(doc, f.Key)
			if !isSequence(cur) {
				continue
			}
			remove := asA(f.Value)
			result := bson.A{}
			for _, elem := range asA(cur) {
				drop := false
				for _, r := range remove {
					if DeepEqual(elem, r) {
						drop = true
						break
					}
				}
				if drop {
					changed = true
					continue
				}
				result = append(result, elem)
			}
			doc, err = Set(doc, f.Key, result)
			if err != nil {
				return doc, changed, err
			}
		}
	case opBit:
		for _, f := range fields {
			doc, changed, err = applyBit(doc, f.Key, f.Value, changed)
			if err != nil {
				return doc, changed, err
			}
		}
	}
	return doc, changed, nil
}

// numericResult preserves integer-ness when both the base and the operand
// were integral, matching MongoDB's numeric-type promotion for $inc/$mul.
func numericResult(f float64, base interface{}, operand interface{}) interface{} {
	if isIntegral(base) && isIntegral(operand) {
		return int64(f)
	}
	return f
}

func isIntegral(v interface{}) bool {
	switch v.(type) {
	case int, int32, int64:
		return true
	default:
		return false
	}
}

// currentDateTime returns the current UTC instant truncated to millisecond
// precision, matching BSON's Date resolution.
var currentDateTime = func() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func eachValues(v interface{}) ([]interface{}, bool) {
	if d, ok := v.(bson.D); ok {
		for _, e := range d {
			if e.Key == opEach {
				arr := asA(e.Value)
				out := make([]interface{}, len(arr))
				copy(out, arr)
				return out, true
			}
		}
	}
	return []interface{}{v}, false
}

func applyPush(doc bson.D, field string, value interface{}, changed bool) (bson.D, bool, error) {
	var values []interface{}
	var position *int
	var slice *int
	var sortSpec interface{}

	if d, ok := value.(bson.D); ok && isPushModifierDoc(d) {
		for _, e := range d {
			switch e.Key {
			case opEach:
				for _, v := range asA(e.Value) {
					values = append(values, v)
				}
			case opPosition:
				if n, ok := asFloat(e.Value); ok {
					p := int(n)
					position = &p
				}
			case opSlice:
				if n, ok := asFloat(e.Value); ok {
					s := int(n)
					slice = &s
				}
			case opSort:
				sortSpec = e.Value
			}
		}
	} else {
		values = []interface{}{value}
	}

	cur := Get(doc, field)
	var arr bson.A
	if isSequence(cur) {
		arr = append(bson.A{}, asA(cur)...)
	} else if !IsMissing(cur) {
		return doc, changed, newErr(KindInvalidOperation, nil, "$push on %q: existing value is not an array", field)
	}

	if position != nil {
		p := *position
		if p < 0 {
			p = len(arr) + p
		}
		if p < 0 {
			p = 0
		}
		if p > len(arr) {
			p = len(arr)
		}
		merged := make(bson.A, 0, len(arr)+len(values))
		merged = append(merged, arr[:p]...)
		merged = append(merged, values...)
		merged = append(merged, arr[p:]...)
		arr = merged
	} else {
		arr = append(arr, values...)
	}

	if sortSpec != nil {
		arr = sortArray(arr, sortSpec)
	}

	if slice != nil {
		s := *slice
		switch {
		case s == 0:
			arr = bson.A{}
		case s > 0 && s < len(arr):
			arr = arr[:s]
		case s < 0 && -s < len(arr):
			arr = arr[len(arr)+s:]
		}
	}

	out, err := Set(doc, field, arr)
	return out, true, err
}

// isPushModifierDoc reports whether d is a $push modifier document rather
// than a literal embedded-document value being pushed verbatim.
func isPushModifierDoc(d bson.D) bool {
	for _, e := range d {
		switch e.Key {
		case opEach, opPosition, opSlice, opSort:
			return true
		}
	}
	return false
}

func sortArray(arr bson.A, spec interface{}) bson.A {
	out := append(bson.A{}, arr...)
	switch s := spec.(type) {
	case int, int32, int64, float64:
		dir, _ := asFloat(s)
		sort.SliceStable(out, func(i, j int) bool {
			c := Compare(out[i], out[j])
			if dir < 0 {
				return c > 0
			}
			return c < 0
		})
	default:
		rules := asD(spec)
		sort.SliceStable(out, func(i, j int) bool {
			for _, r := range rules {
				dir, _ := asFloat(r.Value)
				a := Get(out[i], r.Key)
				b := Get(out[j], r.Key)
				c := Compare(a, b)
				if c == 0 {
					continue
				}
				if dir < 0 {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	return out
}

// matchesPullCondition reports whether elem satisfies a $pull condition,
// which may be a literal value for exact matching or an operator/filter
// document for complex conditions.
func matchesPullCondition(elem interface{}, cond interface{}) bool {
	if d, ok := cond.(bson.D); ok && isOperatorDoc(d) {
		for _, op := range d {
			if !evalOperator(op.Key, op.Value, elem, nil, "") {
				return false
			}
		}
		return true
	}
	if d, ok := cond.(bson.D); ok {
		if ed, ok := elem.(bson.D); ok {
			return Matches(d, ed)
		}
		return false
	}
	return DeepEqual(elem, cond)
}

func applyBit(doc bson.D, field string, spec interface{}, changed bool) (bson.D, bool, error) {
	d, ok := spec.(bson.D)
	if !ok || len(d) == 0 {
		return doc, changed, newErr(KindInvalidOperation, nil, "$bit on %q requires and/or/xor", field)
	}
	cur := Get(doc, field)
	base, ok := asFloat(cur)
	if !ok {
		base = 0
	}
	result := int64(base)
	for _, e := range d {
		operand, _ := asFloat(e.Value)
		switch e.Key {
		case "and":
			result &= int64(operand)
		case "or":
			result |= int64(operand)
		case "xor":
			result ^= int64(operand)
		}
	}
	out, err := Set(doc, field, result)
	return out, true, err
}

func cloneD(d bson.D) bson.D {
	out := make(bson.D, len(d))
	copy(out, d)
	return out
}
