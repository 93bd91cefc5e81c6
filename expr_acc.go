package gmqb

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// --- Accumulator Operators (for $group and $setWindowFields) ---
// The $group stage runs its accumulators strictly: AccSum through
// AccAddToSet below are evaluated, and anything else fails the stage
// rather than passing through, since a silently ignored accumulator would
// fabricate group output.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/#accumulators-group-project-addfields-etc

// AccSum totals numeric values, skipping non-numeric ones; AccSum(1)
// counts the group's documents.
//
// MongoDB equivalent: { $sum: expression }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/sum/
func AccSum(expression interface{}) bson.D { return bson.D{{Key: accSum, Value: expression}} }

// AccAvg averages the group's numeric values; a group with none yields
// null.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/avg/
func AccAvg(expression interface{}) bson.D { return bson.D{{Key: accAvg, Value: expression}} }

// AccMin keeps the group's least value under the cross-type total order.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/min/
func AccMin(expression interface{}) bson.D { return bson.D{{Key: opMin, Value: expression}} }

// AccMax keeps the group's greatest value.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/max/
func AccMax(expression interface{}) bson.D { return bson.D{{Key: opMax, Value: expression}} }

// AccFirst keeps the expression's value for the group's first document, in
// the order documents reached the stage.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/first/
func AccFirst(expression interface{}) bson.D { return bson.D{{Key: accFirst, Value: expression}} }

// AccLast keeps the expression's value for the group's last document.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/last/
func AccLast(expression interface{}) bson.D { return bson.D{{Key: accLast, Value: expression}} }

// AccPush collects every value into an array, duplicates included.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/push/
func AccPush(expression interface{}) bson.D { return bson.D{{Key: opPush, Value: expression}} }

// AccAddToSet collects the structurally distinct values into an array.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/addToSet/
func AccAddToSet(expression interface{}) bson.D {
	return bson.D{{Key: opAddToSet, Value: expression}}
}

// --- Buildable-only accumulators ---
// The constructors below produce wire-compatible accumulator documents the
// strict $group evaluator rejects; they exist for callers assembling
// pipelines destined for an engine that does implement them.

// AccStdDevPop: population standard deviation.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/stdDevPop/
func AccStdDevPop(expression interface{}) bson.D {
	return bson.D{{Key: "$stdDevPop", Value: expression}}
}

// AccStdDevSamp: sample standard deviation.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/stdDevSamp/
func AccStdDevSamp(expression interface{}) bson.D {
	return bson.D{{Key: "$stdDevSamp", Value: expression}}
}

// AccCount: document count, the argumentless 5.0+ spelling of AccSum(1).
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/count-accumulator/
func AccCount() bson.D { return bson.D{{Key: stCount, Value: bson.D{}}} }

// AccFirstN: the first n values. (MongoDB 5.2+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/firstN/
func AccFirstN(expression interface{}, n interface{}) bson.D {
	return bson.D{{Key: "$firstN", Value: bson.D{{Key: "input", Value: expression}, {Key: "n", Value: n}}}}
}

// AccLastN: the last n values. (MongoDB 5.2+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/lastN/
func AccLastN(expression interface{}, n interface{}) bson.D {
	return bson.D{{Key: "$lastN", Value: bson.D{{Key: "input", Value: expression}, {Key: "n", Value: n}}}}
}

// AccMaxN: the n greatest values. (MongoDB 5.2+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/maxN/
func AccMaxN(expression interface{}, n interface{}) bson.D {
	return bson.D{{Key: "$maxN", Value: bson.D{{Key: "input", Value: expression}, {Key: "n", Value: n}}}}
}

// AccMinN: the n least values. (MongoDB 5.2+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/minN/
func AccMinN(expression interface{}, n interface{}) bson.D {
	return bson.D{{Key: "$minN", Value: bson.D{{Key: "input", Value: expression}, {Key: "n", Value: n}}}}
}

// AccTop: the output expression for the group's first document under
// sortBy. (MongoDB 5.2+)
//
// MongoDB equivalent: { $top: { sortBy: { field: 1 }, output: expression } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/top/
func AccTop(sortBy bson.D, output interface{}) bson.D {
	return bson.D{{Key: "$top", Value: bson.D{{Key: "sortBy", Value: sortBy}, {Key: "output", Value: output}}}}
}

// AccBottom: the output expression for the group's last document under
// sortBy. (MongoDB 5.2+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/bottom/
func AccBottom(sortBy bson.D, output interface{}) bson.D {
	return bson.D{{Key: "$bottom", Value: bson.D{{Key: "sortBy", Value: sortBy}, {Key: "output", Value: output}}}}
}

// AccTopN: the first n outputs under sortBy. (MongoDB 5.2+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/topN/
func AccTopN(sortBy bson.D, output interface{}, n interface{}) bson.D {
	return bson.D{{Key: "$topN", Value: bson.D{
		{Key: "sortBy", Value: sortBy},
		{Key: "output", Value: output},
		{Key: "n", Value: n},
	}}}
}

// AccBottomN: the last n outputs under sortBy. (MongoDB 5.2+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/bottomN/
func AccBottomN(sortBy bson.D, output interface{}, n interface{}) bson.D {
	return bson.D{{Key: "$bottomN", Value: bson.D{
		{Key: "sortBy", Value: sortBy},
		{Key: "output", Value: output},
		{Key: "n", Value: n},
	}}}
}

// AccMedian: approximate median. (MongoDB 7.0+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/median/
func AccMedian(input interface{}, method string) bson.D {
	return bson.D{{Key: "$median", Value: bson.D{
		{Key: "input", Value: input},
		{Key: "method", Value: method},
	}}}
}

// AccPercentile: approximate percentiles. (MongoDB 7.0+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/percentile/
func AccPercentile(input interface{}, p bson.A, method string) bson.D {
	return bson.D{{Key: "$percentile", Value: bson.D{
		{Key: "input", Value: input},
		{Key: "p", Value: p},
		{Key: "method", Value: method},
	}}}
}

// --- Set Expression Operators ---
// Buildable surface; the expression evaluator passes these through.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/#set-expression-operators

// ExprSetEquals: the operand sets hold the same elements.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/setEquals/
func ExprSetEquals(arrays ...interface{}) bson.D {
	return bson.D{{Key: "$setEquals", Value: bson.A(arrays)}}
}

// ExprSetIntersection: elements common to every operand set.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/setIntersection/
func ExprSetIntersection(arrays ...interface{}) bson.D {
	return bson.D{{Key: "$setIntersection", Value: bson.A(arrays)}}
}

// ExprSetUnion: elements present in any operand set.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/setUnion/
func ExprSetUnion(arrays ...interface{}) bson.D {
	return bson.D{{Key: "$setUnion", Value: bson.A(arrays)}}
}

// ExprSetDifference: elements of the first set absent from the second.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/setDifference/
func ExprSetDifference(arr1, arr2 interface{}) bson.D {
	return bson.D{{Key: "$setDifference", Value: bson.A{arr1, arr2}}}
}

// ExprSetIsSubset: the first set is contained in the second.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/setIsSubset/
func ExprSetIsSubset(arr1, arr2 interface{}) bson.D {
	return bson.D{{Key: "$setIsSubset", Value: bson.A{arr1, arr2}}}
}

// ExprAnyElementTrue: some element of the operand set is truthy.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/anyElementTrue/
func ExprAnyElementTrue(array interface{}) bson.D {
	return bson.D{{Key: "$anyElementTrue", Value: array}}
}

// ExprAllElementsTrue: every element of the operand set is truthy.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/allElementsTrue/
func ExprAllElementsTrue(array interface{}) bson.D {
	return bson.D{{Key: "$allElementsTrue", Value: array}}
}

// --- Object Expression Operators ---
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/#object-expression-operators

// ExprMergeObjects overlays the operand documents left to right into one.
//
// MongoDB equivalent: { $mergeObjects: [ doc1, doc2, ... ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/mergeObjects/
func ExprMergeObjects(documents ...interface{}) bson.D {
	return bson.D{{Key: "$mergeObjects", Value: bson.A(documents)}}
}

// ExprGetField reads a field (by computed name) from a document. (5.0+)
//
// MongoDB equivalent: { $getField: { field: "name", input: doc } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/getField/
func ExprGetField(field interface{}, input interface{}) bson.D {
	return bson.D{{Key: "$getField", Value: bson.D{
		{Key: "field", Value: field},
		{Key: "input", Value: input},
	}}}
}

// ExprSetField writes a field (by computed name) into a document. (5.0+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/setField/
func ExprSetField(field interface{}, input, value interface{}) bson.D {
	return bson.D{{Key: "$setField", Value: bson.D{
		{Key: "field", Value: field},
		{Key: "input", Value: input},
		{Key: "value", Value: value},
	}}}
}

// ExprUnsetField removes a field (by computed name) from a document. (5.0+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/unsetField/
func ExprUnsetField(field interface{}, input interface{}) bson.D {
	return bson.D{{Key: "$unsetField", Value: bson.D{
		{Key: "field", Value: field},
		{Key: "input", Value: input},
	}}}
}

// --- Literal & Miscellaneous ---

// ExprLiteral shields a value from expression parsing: the way to emit a
// string that begins with "$" as itself. The evaluator honors it directly.
//
// MongoDB equivalent: { $literal: value }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/literal/
func ExprLiteral(value interface{}) bson.D {
	return bson.D{{Key: opLiteral, Value: value}}
}

// ExprRand: a random float in [0, 1). (MongoDB 4.4.2+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/rand/
func ExprRand() bson.D {
	return bson.D{{Key: "$rand", Value: bson.D{}}}
}

// ExprSampleRate: keep each document with the given probability, rate in
// [0, 1]. (MongoDB 4.4.2+)
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/sampleRate/
func ExprSampleRate(rate float64) bson.D {
	return bson.D{{Key: "$sampleRate", Value: rate}}
}

// ExprLet binds variables visible in the body as $$references. The
// evaluator resolves the bindings against the enclosing scope, then
// evaluates the body with them added.
//
// MongoDB equivalent: { $let: { vars: { var1: expr1 }, in: bodyExpr } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/let/
func ExprLet(vars bson.D, in interface{}) bson.D {
	return bson.D{{Key: opLet, Value: bson.D{
		{Key: "vars", Value: vars},
		{Key: "in", Value: in},
	}}}
}
