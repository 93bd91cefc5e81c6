package gmqb

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Filter is an immutable query predicate over documents. Each chaining
// method returns a new Filter and leaves the receiver untouched; chained
// conditions are implicitly ANDed, exactly as the matcher evaluates them.
//
// A Filter is both a wire artifact (BsonD/JSON for anything that speaks the
// MongoDB query shape) and directly executable in-process via Matches.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/
//
// Example:
//
//	f := gmqb.NewFilter().
//	    Eq("status", "active").
//	    Gte("age", 18).
//	    Exists("email", true)
//	if f.Matches(doc) { ... }
type Filter struct {
	d bson.D
}

// NewFilter returns an empty Filter; an empty predicate matches every
// document.
func NewFilter() Filter {
	return Filter{}
}

// append returns a new Filter with one more predicate entry. The receiver
// is never mutated.
func (f Filter) append(e bson.E) Filter {
	newD := make(bson.D, len(f.d), len(f.d)+1)
	copy(newD, f.d)
	newD = append(newD, e)
	return Filter{d: newD}
}

// BsonD returns the predicate as a bson.D, the exact document shape the
// wire protocol carries in a find/count/delete command's filter argument.
func (f Filter) BsonD() bson.D {
	return f.d
}

// BsonM returns the predicate as an unordered bson.M. Key order is lost;
// use BsonD where order matters.
func (f Filter) BsonM() bson.M {
	m := bson.M{}
	for _, e := range f.d {
		m[e.Key] = e.Value
	}
	return m
}

// JSON renders the predicate as indented extended JSON, for logs and
// debugging.
//
// Example:
//
//	gmqb.Eq("name", "Alice").JSON()
//	// {
//	//   "name": { "$eq": "Alice" }
//	// }
func (f Filter) JSON() string {
	return toJSON(f.d)
}

// CompactJSON renders the predicate as single-line extended JSON. The
// output is deterministic for a given Filter, which is what makes it usable
// as a cache key.
func (f Filter) CompactJSON() string {
	return toCompactJSON(f.d)
}

// IsEmpty reports whether the filter has no predicates.
func (f Filter) IsEmpty() bool {
	return len(f.d) == 0
}

// Raw wraps a hand-built bson.D as a Filter, for operator shapes the
// builder has no constructor for.
//
// Example:
//
//	f := gmqb.Raw(bson.D{{"$text", bson.D{{"$search", "coffee"}}}})
func Raw(d bson.D) Filter {
	return Filter{d: d}
}

// --- Comparison Operators ---

// Eq matches documents whose field equals value, with the matcher's usual
// array-broadcast behavior when the stored value is a sequence.
//
// MongoDB equivalent:
//
//	{ field: { $eq: value } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/eq/
func Eq(field string, value interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opEq, Value: value}}}}}
}

// Eq chains an equality condition onto the filter.
func (f Filter) Eq(field string, value interface{}) Filter {
	return f.append(bson.E{Key: field, Value: bson.D{{Key: opEq, Value: value}}})
}

// Ne matches documents whose field does not equal value. The negation
// covers array broadcast too: a sequence containing value fails the
// predicate.
//
// MongoDB equivalent:
//
//	{ field: { $ne: value } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/ne/
func Ne(field string, value interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opNe, Value: value}}}}}
}

// Ne chains a not-equal condition onto the filter.
func (f Filter) Ne(field string, value interface{}) Filter {
	return f.append(bson.E{Key: field, Value: bson.D{{Key: opNe, Value: value}}})
}

// Gt matches documents whose field orders strictly after value. Cross-type
// comparisons (number vs string, say) never match.
//
// MongoDB equivalent:
//
//	{ field: { $gt: value } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/gt/
func Gt(field string, value interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opGt, Value: value}}}}}
}

// Gt chains a greater-than condition onto the filter.
func (f Filter) Gt(field string, value interface{}) Filter {
	return f.append(bson.E{Key: field, Value: bson.D{{Key: opGt, Value: value}}})
}

// Gte matches documents whose field orders at or after value.
//
// MongoDB equivalent:
//
//	{ field: { $gte: value } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/gte/
func Gte(field string, value interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opGte, Value: value}}}}}
}

// Gte chains a greater-or-equal condition onto the filter.
func (f Filter) Gte(field string, value interface{}) Filter {
	return f.append(bson.E{Key: field, Value: bson.D{{Key: opGte, Value: value}}})
}

// Lt matches documents whose field orders strictly before value.
//
// MongoDB equivalent:
//
//	{ field: { $lt: value } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/lt/
func Lt(field string, value interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opLt, Value: value}}}}}
}

// Lt chains a less-than condition onto the filter.
func (f Filter) Lt(field string, value interface{}) Filter {
	return f.append(bson.E{Key: field, Value: bson.D{{Key: opLt, Value: value}}})
}

// Lte matches documents whose field orders at or before value.
//
// MongoDB equivalent:
//
//	{ field: { $lte: value } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/lte/
func Lte(field string, value interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opLte, Value: value}}}}}
}

// Lte chains a less-or-equal condition onto the filter.
func (f Filter) Lte(field string, value interface{}) Filter {
	return f.append(bson.E{Key: field, Value: bson.D{{Key: opLte, Value: value}}})
}

// In matches documents whose field equals any of values. A stored sequence
// matches if any of its elements does.
//
// MongoDB equivalent:
//
//	{ field: { $in: [value1, value2, ...] } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/in/
//
// Example:
//
//	f := gmqb.In("status", "active", "pending")
func In(field string, values ...interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opIn, Value: bson.A(values)}}}}}
}

// In chains a membership condition onto the filter.
func (f Filter) In(field string, values ...interface{}) Filter {
	return f.append(bson.E{Key: field, Value: bson.D{{Key: opIn, Value: bson.A(values)}}})
}

// Nin matches documents whose field equals none of values.
//
// MongoDB equivalent:
//
//	{ field: { $nin: [value1, value2, ...] } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/nin/
func Nin(field string, values ...interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opNin, Value: bson.A(values)}}}}}
}

// Nin chains a non-membership condition onto the filter.
func (f Filter) Nin(field string, values ...interface{}) Filter {
	return f.append(bson.E{Key: field, Value: bson.D{{Key: opNin, Value: bson.A(values)}}})
}

// --- Logical Operators ---

// And matches documents that satisfy every given filter. Top-level chaining
// already ANDs implicitly; the explicit form exists for combining
// conditions on the same field, where a flat document could not hold two
// entries under one key unambiguously.
//
// MongoDB equivalent:
//
//	{ $and: [ filter1, filter2, ... ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/and/
//
// Example:
//
//	f := gmqb.And(
//	    gmqb.Gte("age", 18),
//	    gmqb.Lt("age", 65),
//	)
func And(filters ...Filter) Filter {
	arr := make(bson.A, len(filters))
	for i, f := range filters {
		arr[i] = f.d
	}
	return Filter{d: bson.D{{Key: opAnd, Value: arr}}}
}

// Or matches documents that satisfy at least one of the given filters.
//
// MongoDB equivalent:
//
//	{ $or: [ filter1, filter2, ... ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/or/
func Or(filters ...Filter) Filter {
	arr := make(bson.A, len(filters))
	for i, f := range filters {
		arr[i] = f.d
	}
	return Filter{d: bson.D{{Key: opOr, Value: arr}}}
}

// Nor matches documents that satisfy none of the given filters.
//
// MongoDB equivalent:
//
//	{ $nor: [ filter1, filter2, ... ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/nor/
func Nor(filters ...Filter) Filter {
	arr := make(bson.A, len(filters))
	for i, f := range filters {
		arr[i] = f.d
	}
	return Filter{d: bson.D{{Key: opNor, Value: arr}}}
}

// Not inverts an operator expression on one field: the result matches
// documents the inner condition does not. The inner filter's entry for
// field supplies the operator expression being negated.
//
// MongoDB equivalent:
//
//	{ field: { $not: { operator-expression } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/not/
//
// Example:
//
//	f := gmqb.Not("age", gmqb.Gte("age", 18))
//	// {"age": {"$not": {"$gte": 18}}}
func Not(field string, inner Filter) Filter {
	var opExprVal interface{}
	for _, e := range inner.d {
		if e.Key == field {
			opExprVal = e.Value
			break
		}
	}
	if opExprVal == nil {
		opExprVal = inner.d
	}
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opNot, Value: opExprVal}}}}}
}

// --- Element Operators ---

// Exists matches documents where field is present (exists == true) or
// absent (exists == false). A field holding an explicit null counts as
// present.
//
// MongoDB equivalent:
//
//	{ field: { $exists: true/false } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/exists/
func Exists(field string, exists bool) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opExists, Value: exists}}}}}
}

// Exists chains a presence condition onto the filter.
func (f Filter) Exists(field string, exists bool) Filter {
	return f.append(bson.E{Key: field, Value: bson.D{{Key: opExists, Value: exists}}})
}

// Type builds a BSON-type condition. typeVal is a string alias ("string",
// "int", "double") or a numeric BSON type code. Carried for wire
// compatibility; the matcher treats it permissively.
//
// MongoDB equivalent:
//
//	{ field: { $type: typeVal } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/type/
func Type(field string, typeVal interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opType, Value: typeVal}}}}}
}

// Type chains a BSON-type condition onto the filter.
func (f Filter) Type(field string, typeVal interface{}) Filter {
	return f.append(bson.E{Key: field, Value: bson.D{{Key: opType, Value: typeVal}}})
}

// --- Evaluation Operators ---

// Mod builds a remainder condition: field % divisor == remainder. Carried
// for wire compatibility; the matcher treats it permissively.
//
// MongoDB equivalent:
//
//	{ field: { $mod: [ divisor, remainder ] } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/mod/
func Mod(field string, divisor, remainder int64) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opMod, Value: bson.A{divisor, remainder}}}}}}
}

// Regex matches string fields against a regular expression. The matcher
// evaluates it with the platform engine; of the conventional options only
// "i", "m", and "s" are honored. A non-string stored value never matches,
// but a sequence matches when any of its string elements does, per the
// usual array-broadcast rule.
//
// MongoDB equivalent:
//
//	{ field: { $regex: pattern, $options: options } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/regex/
//
// Example:
//
//	f := gmqb.Regex("email", `^.*@company\.com$`, "i")
func Regex(field string, pattern string, options string) Filter {
	expr := bson.D{{Key: opRegex, Value: pattern}}
	if options != "" {
		expr = append(expr, bson.E{Key: opOptions, Value: options})
	}
	return Filter{d: bson.D{{Key: field, Value: expr}}}
}

// Regex chains a regular-expression condition onto the filter.
func (f Filter) Regex(field string, pattern string, options string) Filter {
	expr := bson.D{{Key: opRegex, Value: pattern}}
	if options != "" {
		expr = append(expr, bson.E{Key: opOptions, Value: options})
	}
	return f.append(bson.E{Key: field, Value: expr})
}

// Expr embeds an aggregation expression in a query predicate, which is how
// two fields of the same document get compared. Carried for wire
// compatibility; the matcher treats it permissively.
//
// MongoDB equivalent:
//
//	{ $expr: expression }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/expr/
//
// Example:
//
//	f := gmqb.Expr(gmqb.ExprGt("$spent", "$budget"))
func Expr(expression interface{}) Filter {
	return Filter{d: bson.D{{Key: opExpr, Value: expression}}}
}

// Where builds a JavaScript predicate ("this" is the document). There is
// no script engine behind the matcher, so this is wire-compatibility
// surface only.
//
// MongoDB equivalent:
//
//	{ $where: "javascript expression" }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/where/
func Where(jsExpr string) Filter {
	return Filter{d: bson.D{{Key: opWhere, Value: jsExpr}}}
}

// JsonSchema builds a JSON-Schema validation predicate. Wire-compatibility
// surface only; the matcher treats it permissively.
//
// MongoDB equivalent:
//
//	{ $jsonSchema: schema }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/jsonSchema/
func JsonSchema(schema interface{}) Filter {
	return Filter{d: bson.D{{Key: opJSONSchema, Value: schema}}}
}

// --- Array Operators ---

// All matches sequence fields containing every one of values, in any order.
//
// MongoDB equivalent:
//
//	{ field: { $all: [value1, value2, ...] } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/all/
func All(field string, values ...interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opAll, Value: bson.A(values)}}}}}
}

// ElemMatch matches sequence fields where at least one element satisfies
// the whole inner filter. An inner filter of bare operators applies to the
// element as a scalar; anything else applies to it as a document.
//
// MongoDB equivalent:
//
//	{ field: { $elemMatch: { condition1, condition2, ... } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/elemMatch/
//
// Example:
//
//	f := gmqb.ElemMatch("results", gmqb.And(
//	    gmqb.Gte("score", 80),
//	    gmqb.Lt("score", 100),
//	))
func ElemMatch(field string, filter Filter) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opElemMatch, Value: filter.d}}}}}
}

// Size matches sequence fields of exactly n elements. Never matches a
// non-sequence value.
//
// MongoDB equivalent:
//
//	{ field: { $size: n } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/size/
func Size(field string, n int) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opSize, Value: n}}}}}
}

// Size chains an exact-length condition onto the filter.
func (f Filter) Size(field string, n int) Filter {
	return f.append(bson.E{Key: field, Value: bson.D{{Key: opSize, Value: n}}})
}

// --- Geospatial Geometry Helpers ---

// Point builds a GeoJSON Point. Coordinates are longitude first, then
// latitude.
func Point(longitude, latitude float64) bson.D {
	return bson.D{
		{Key: "type", Value: "Point"},
		{Key: "coordinates", Value: bson.A{longitude, latitude}},
	}
}

// LineString builds a GeoJSON LineString from [longitude, latitude] pairs.
func LineString(coordinates ...[2]float64) bson.D {
	coords := make(bson.A, len(coordinates))
	for i, c := range coordinates {
		coords[i] = bson.A{c[0], c[1]}
	}
	return bson.D{
		{Key: "type", Value: "LineString"},
		{Key: "coordinates", Value: coords},
	}
}

// Polygon builds a GeoJSON Polygon from one or more linear rings: the
// first is the exterior boundary, the rest are holes, and every ring must
// close (first and last pair equal).
func Polygon(rings ...[][2]float64) bson.D {
	coords := make(bson.A, len(rings))
	for i, ring := range rings {
		ringCoords := make(bson.A, len(ring))
		for j, c := range ring {
			ringCoords[j] = bson.A{c[0], c[1]}
		}
		coords[i] = ringCoords
	}
	return bson.D{
		{Key: "type", Value: "Polygon"},
		{Key: "coordinates", Value: coords},
	}
}

// --- Geospatial Operators ---
// These build the conventional geospatial query shapes for wire
// compatibility. No geospatial index backs the matcher, so it treats them
// permissively.

// GeoIntersects builds an intersects-geometry condition. geometry is a
// GeoJSON object (see Point/LineString/Polygon).
//
// MongoDB equivalent:
//
//	{ field: { $geoIntersects: { $geometry: geometry } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/geoIntersects/
func GeoIntersects(field string, geometry interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{
		{Key: opGeoIntersects, Value: bson.D{{Key: opGeometry, Value: geometry}}},
	}}}}
}

// GeoWithin builds a within-shape condition.
//
// MongoDB equivalent:
//
//	{ field: { $geoWithin: { $geometry: geometry } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/geoWithin/
func GeoWithin(field string, geometry interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{
		{Key: opGeoWithin, Value: bson.D{{Key: opGeometry, Value: geometry}}},
	}}}}
}

// Near builds a proximity condition around a GeoJSON point. maxDistance
// and minDistance are in meters; pass 0 to omit either.
//
// MongoDB equivalent:
//
//	{ field: { $near: { $geometry: point, $maxDistance: m, $minDistance: m } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/near/
func Near(field string, geometry interface{}, maxDistance, minDistance float64) Filter {
	nearDoc := bson.D{{Key: opGeometry, Value: geometry}}
	if maxDistance > 0 {
		nearDoc = append(nearDoc, bson.E{Key: opMaxDistance, Value: maxDistance})
	}
	if minDistance > 0 {
		nearDoc = append(nearDoc, bson.E{Key: opMinDistance, Value: minDistance})
	}
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opNear, Value: nearDoc}}}}}
}

// NearSphere builds a spherical-proximity condition. maxDistance and
// minDistance are in meters; pass 0 to omit either.
//
// MongoDB equivalent:
//
//	{ field: { $nearSphere: { $geometry: point, $maxDistance: m, $minDistance: m } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/nearSphere/
func NearSphere(field string, geometry interface{}, maxDistance, minDistance float64) Filter {
	nearDoc := bson.D{{Key: opGeometry, Value: geometry}}
	if maxDistance > 0 {
		nearDoc = append(nearDoc, bson.E{Key: opMaxDistance, Value: maxDistance})
	}
	if minDistance > 0 {
		nearDoc = append(nearDoc, bson.E{Key: opMinDistance, Value: minDistance})
	}
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opNearSphere, Value: nearDoc}}}}}
}

// --- Bitwise Operators ---
// Bitmask conditions, built for wire compatibility and treated permissively
// by the matcher. bitmask is a number, a BinData value, or a position list.

// BitsAllClear: every named bit position is 0.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/bitsAllClear/
func BitsAllClear(field string, bitmask interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opBitsAllClear, Value: bitmask}}}}}
}

// BitsAllSet: every named bit position is 1.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/bitsAllSet/
func BitsAllSet(field string, bitmask interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opBitsAllSet, Value: bitmask}}}}}
}

// BitsAnyClear: at least one named bit position is 0.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/bitsAnyClear/
func BitsAnyClear(field string, bitmask interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opBitsAnyClear, Value: bitmask}}}}}
}

// BitsAnySet: at least one named bit position is 1.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/query/bitsAnySet/
func BitsAnySet(field string, bitmask interface{}) Filter {
	return Filter{d: bson.D{{Key: field, Value: bson.D{{Key: opBitsAnySet, Value: bitmask}}}}}
}
