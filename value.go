package gmqb

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Missing is the sentinel returned by Get when a dotted path does not
// resolve to a value: either a segment is absent, or the path traverses
// through null. Missing compares equal to nil for ordering but is
// distinguishable from an explicit nil via IsMissing.
type missingType struct{}

// Missing is the sentinel value. Compare it with IsMissing rather than ==,
// since it is returned by value, not by pointer.
var Missing = missingType{}

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v interface{}) bool {
	_, ok := v.(missingType)
	return ok
}

// Get resolves a dotted path against doc, returning Missing if any segment
// is absent or traverses through a null. A numeric segment indexes into a
// bson.A; on a bson.D, a numeric-looking segment ("0") is looked up as a
// literal key first; mappings never fall back to positional indexing.
func Get(doc interface{}, path string) interface{} {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		if cur == nil {
			return Missing
		}
		switch v := cur.(type) {
		case bson.D:
			found := false
			for _, e := range v {
				if e.Key == seg {
					cur = e.Value
					found = true
					break
				}
			}
			if !found {
				return Missing
			}
		case bson.M:
			val, ok := v[seg]
			if !ok {
				return Missing
			}
			cur = val
		case map[string]interface{}:
			val, ok := v[seg]
			if !ok {
				return Missing
			}
			cur = val
		case bson.A:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return Missing
			}
			cur = v[idx]
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return Missing
			}
			cur = v[idx]
		default:
			return Missing
		}
	}
	if cur == nil {
		return nil
	}
	return cur
}

// Set writes v at path within doc, creating intermediate bson.D mappings
// as needed. A numeric segment against a bson.A parent grows the sequence
// with nil fill. Returns an error wrapping ErrScalarTraversal if an
// intermediate segment addresses a non-container scalar.
func Set(doc bson.D, path string, v interface{}) (bson.D, error) {
	segs := strings.Split(path, ".")
	out, err := setAt(doc, segs, v)
	if err != nil {
		return doc, err
	}
	d, ok := out.(bson.D)
	if !ok {
		return doc, newErr(KindInternal, nil, "Set: root mutated to non-document")
	}
	return d, nil
}

func setAt(container interface{}, segs []string, v interface{}) (interface{}, error) {
	seg := segs[0]
	rest := segs[1:]

	switch orig := container.(type) {
	case nil:
		return buildFresh(segs, v), nil
	case bson.D:
		c := cloneD(orig)
		for i, e := range c {
			if e.Key == seg {
				if len(rest) == 0 {
					c[i].Value = v
					return c, nil
				}
				nested, err := setAt(e.Value, rest, v)
				if err != nil {
					return nil, err
				}
				c[i].Value = nested
				return c, nil
			}
		}
		if len(rest) == 0 {
			return append(c, bson.E{Key: seg, Value: v}), nil
		}
		nested, err := setAt(nil, rest, v)
		if err != nil {
			return nil, err
		}
		return append(c, bson.E{Key: seg, Value: nested}), nil
	case bson.A:
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return nil, newErr(KindInvalidOperation, ErrScalarTraversal, "path segment %q on array", seg)
		}
		c := append(bson.A{}, orig...)
		for idx >= len(c) {
			c = append(c, nil)
		}
		if len(rest) == 0 {
			c[idx] = v
			return c, nil
		}
		nested, err := setAt(c[idx], rest, v)
		if err != nil {
			return nil, err
		}
		c[idx] = nested
		return c, nil
	default:
		return nil, newErr(KindInvalidOperation, ErrScalarTraversal, "path segment %q", seg)
	}
}

// buildFresh creates a brand-new nested bson.D chain for segs ending in v;
// every segment, numeric or not, becomes a bson.D key.
func buildFresh(segs []string, v interface{}) interface{} {
	if len(segs) == 0 {
		return v
	}
	return bson.D{{Key: segs[0], Value: buildFresh(segs[1:], v)}}
}

// Unset removes the leaf addressed by path. Intermediate creation is never
// attempted; a missing intermediate is a no-op, not an error.
func Unset(doc bson.D, path string) bson.D {
	segs := strings.Split(path, ".")
	out, _ := unsetAt(doc, segs)
	d, ok := out.(bson.D)
	if !ok {
		return doc
	}
	return d
}

func unsetAt(container interface{}, segs []string) (interface{}, bool) {
	seg := segs[0]
	rest := segs[1:]

	switch orig := container.(type) {
	case bson.D:
		for i, e := range orig {
			if e.Key != seg {
				continue
			}
			if len(rest) == 0 {
				return append(append(bson.D{}, orig[:i]...), orig[i+1:]...), true
			}
			nested, ok := unsetAt(e.Value, rest)
			if !ok {
				return orig, false
			}
			c := cloneD(orig)
			c[i].Value = nested
			return c, true
		}
		return orig, false
	case bson.A:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(orig) {
			return orig, false
		}
		c := append(bson.A{}, orig...)
		if len(rest) == 0 {
			c[idx] = nil
			return c, true
		}
		nested, ok := unsetAt(c[idx], rest)
		if !ok {
			return orig, false
		}
		c[idx] = nested
		return c, true
	default:
		return container, false
	}
}

// typeRank orders the cross-type comparison classes: null/missing <
// number < string < object < sequence < binary < date.
func typeRank(v interface{}) int {
	switch v.(type) {
	case nil, missingType:
		return 0
	case int, int32, int64, float32, float64:
		return 1
	case string:
		return 2
	case bson.D, bson.M, map[string]interface{}:
		return 3
	case bson.A, []interface{}:
		return 4
	case bson.Binary, []byte:
		return 5
	case time.Time, bson.DateTime:
		return 6
	default:
		return 7
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case bson.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

// Compare implements the cross-type total order. It returns <0, 0, >0.
// NaN numbers are grouped and sort last among numbers. Missing and null
// are equivalent for ordering purposes.
func Compare(a, b interface{}) int {
	if IsMissing(a) {
		a = nil
	}
	if IsMissing(b) {
		b = nil
	}

	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}

	switch ra {
	case 0:
		return 0
	case 1:
		fa, _ := asFloat(a)
		fb, _ := asFloat(b)
		aNaN, bNaN := math.IsNaN(fa), math.IsNaN(fb)
		switch {
		case aNaN && bNaN:
			return 0
		case aNaN:
			return 1
		case bNaN:
			return -1
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 3:
		return compareObjects(a, b)
	case 4:
		return compareSequences(a, b)
	case 5:
		ba, _ := asBytes(a)
		bb, _ := asBytes(b)
		return strings.Compare(string(ba), string(bb))
	case 6:
		ta, _ := asTime(a)
		tb, _ := asTime(b)
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func asBytes(v interface{}) ([]byte, bool) {
	switch b := v.(type) {
	case bson.Binary:
		return b.Data, true
	case []byte:
		return b, true
	}
	return nil, false
}

func asD(v interface{}) bson.D {
	switch m := v.(type) {
	case bson.D:
		return m
	case bson.M:
		d := make(bson.D, 0, len(m))
		for k, val := range m {
			d = append(d, bson.E{Key: k, Value: val})
		}
		return d
	case map[string]interface{}:
		d := make(bson.D, 0, len(m))
		for k, val := range m {
			d = append(d, bson.E{Key: k, Value: val})
		}
		return d
	}
	return nil
}

func asA(v interface{}) bson.A {
	switch s := v.(type) {
	case bson.A:
		return s
	case []interface{}:
		return bson.A(s)
	}
	return nil
}

// compareObjects orders by key count, then lexicographically-sorted keys,
// then by the per-key values. Key order does not affect equality, so any
// deterministic ordering is valid here, sorted keys keeps it stable.
func compareObjects(a, b interface{}) int {
	da, db := asD(a), asD(b)
	if len(da) != len(db) {
		if len(da) < len(db) {
			return -1
		}
		return 1
	}
	ka := sortedKeys(da)
	kb := sortedKeys(db)
	for i := range ka {
		if c := strings.Compare(ka[i], kb[i]); c != 0 {
			return c
		}
	}
	ma := toMap(da)
	mb := toMap(db)
	for _, k := range ka {
		if c := Compare(ma[k], mb[k]); c != 0 {
			return c
		}
	}
	return 0
}

func sortedKeys(d bson.D) []string {
	keys := make([]string, len(d))
	for i, e := range d {
		keys[i] = e.Key
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func toMap(d bson.D) map[string]interface{} {
	m := make(map[string]interface{}, len(d))
	for _, e := range d {
		m[e.Key] = e.Value
	}
	return m
}

func compareSequences(a, b interface{}) int {
	sa, sb := asA(a), asA(b)
	n := len(sa)
	if len(sb) < n {
		n = len(sb)
	}
	for i := 0; i < n; i++ {
		if c := Compare(sa[i], sb[i]); c != 0 {
			return c
		}
	}
	return len(sa) - len(sb)
}

// DeepEqual implements structural equality: sequences compare
// element-wise and order-sensitive; mappings compare by key set and value,
// order-insensitive.
func DeepEqual(a, b interface{}) bool {
	if IsMissing(a) {
		a = nil
	}
	if IsMissing(b) {
		b = nil
	}
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return false
	}
	switch ra {
	case 0:
		return true
	case 1:
		fa, _ := asFloat(a)
		fb, _ := asFloat(b)
		return fa == fb
	case 2:
		return a.(string) == b.(string)
	case 3:
		da, db := toMap(asD(a)), toMap(asD(b))
		if len(da) != len(db) {
			return false
		}
		for k, va := range da {
			vb, ok := db[k]
			if !ok || !DeepEqual(va, vb) {
				return false
			}
		}
		return true
	case 4:
		sa, sb := asA(a), asA(b)
		if len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !DeepEqual(sa[i], sb[i]) {
				return false
			}
		}
		return true
	case 5:
		ba, _ := asBytes(a)
		bb, _ := asBytes(b)
		if len(ba) != len(bb) {
			return false
		}
		for i := range ba {
			if ba[i] != bb[i] {
				return false
			}
		}
		return true
	case 6:
		ta, _ := asTime(a)
		tb, _ := asTime(b)
		return ta.Equal(tb)
	default:
		return a == b
	}
}

// isSequence reports whether v is a bson.A or []interface{}.
func isSequence(v interface{}) bool {
	switch v.(type) {
	case bson.A, []interface{}:
		return true
	default:
		return false
	}
}

// isNumeric reports whether v is one of the numeric scalar kinds.
func isNumeric(v interface{}) bool {
	_, ok := asFloat(v)
	return ok
}
