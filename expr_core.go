package gmqb

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// --- Aggregation Expression Helpers ---
// Constructors for the expression documents consumed inside $project,
// $addFields, $group, and $match ($expr). EvalExpr evaluates the
// arithmetic, comparison, boolean, and conditional operators below;
// operators it has no case for pass their evaluated argument through
// unchanged.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/

// --- Arithmetic Expression Operators ---
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/#arithmetic-expression-operators

// ExprAdd sums numbers; in the full wire semantics a date operand shifts
// the date, which the evaluator approximates by treating dates as epoch
// milliseconds.
//
// MongoDB equivalent: { $add: [ expr1, expr2, ... ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/add/
//
// Example:
//
//	gmqb.ExprAdd("$price", "$tax") // { "$add": ["$price", "$tax"] }
func ExprAdd(expressions ...interface{}) bson.D {
	return bson.D{{Key: opAdd, Value: bson.A(expressions)}}
}

// ExprSubtract: first operand minus the second.
//
// MongoDB equivalent: { $subtract: [ expr1, expr2 ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/subtract/
func ExprSubtract(expr1, expr2 interface{}) bson.D {
	return bson.D{{Key: opSubtract, Value: bson.A{expr1, expr2}}}
}

// ExprMultiply: product of the operands.
//
// MongoDB equivalent: { $multiply: [ expr1, expr2, ... ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/multiply/
func ExprMultiply(expressions ...interface{}) bson.D {
	return bson.D{{Key: opMultiply, Value: bson.A(expressions)}}
}

// ExprDivide: dividend over divisor. Division by zero fails the stage at
// evaluation time rather than yielding an infinity.
//
// MongoDB equivalent: { $divide: [ expr1, expr2 ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/divide/
func ExprDivide(dividend, divisor interface{}) bson.D {
	return bson.D{{Key: opDivide, Value: bson.A{dividend, divisor}}}
}

// ExprMod: remainder of dividing the operands.
//
// MongoDB equivalent: { $mod: [ expr1, expr2 ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/mod/
func ExprMod(dividend, divisor interface{}) bson.D {
	return bson.D{{Key: opMod, Value: bson.A{dividend, divisor}}}
}

// ExprAbs: absolute value.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/abs/
func ExprAbs(expression interface{}) bson.D {
	return bson.D{{Key: "$abs", Value: expression}}
}

// ExprCeil: smallest integer at or above the operand.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/ceil/
func ExprCeil(expression interface{}) bson.D {
	return bson.D{{Key: "$ceil", Value: expression}}
}

// ExprFloor: largest integer at or below the operand.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/floor/
func ExprFloor(expression interface{}) bson.D {
	return bson.D{{Key: "$floor", Value: expression}}
}

// ExprRound: round to a decimal place.
//
// MongoDB equivalent: { $round: [ expression, place ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/round/
func ExprRound(expression interface{}, place int) bson.D {
	return bson.D{{Key: "$round", Value: bson.A{expression, place}}}
}

// ExprPow: base raised to exponent.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/pow/
func ExprPow(base, exponent interface{}) bson.D {
	return bson.D{{Key: "$pow", Value: bson.A{base, exponent}}}
}

// ExprSqrt: square root.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/sqrt/
func ExprSqrt(expression interface{}) bson.D {
	return bson.D{{Key: "$sqrt", Value: expression}}
}

// ExprLog: logarithm of number in the given base.
//
// MongoDB equivalent: { $log: [ number, base ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/log/
func ExprLog(number, base interface{}) bson.D {
	return bson.D{{Key: "$log", Value: bson.A{number, base}}}
}

// ExprLn: natural logarithm.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/ln/
func ExprLn(expression interface{}) bson.D {
	return bson.D{{Key: "$ln", Value: expression}}
}

// --- Comparison Expression Operators ---
// All six use the same cross-type total order as Compare; the evaluator
// resolves them to booleans ($cmp to -1/0/1).
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/#comparison-expression-operators

// ExprCmp: -1, 0, or 1 for the two operands' relative order.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/cmp/
func ExprCmp(expr1, expr2 interface{}) bson.D {
	return bson.D{{Key: opCmp, Value: bson.A{expr1, expr2}}}
}

// ExprEq: operands are equal.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/eq/
func ExprEq(expr1, expr2 interface{}) bson.D {
	return bson.D{{Key: opEq, Value: bson.A{expr1, expr2}}}
}

// ExprNe: operands are not equal.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/ne/
func ExprNe(expr1, expr2 interface{}) bson.D {
	return bson.D{{Key: opNe, Value: bson.A{expr1, expr2}}}
}

// ExprGt: first operand orders after the second.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/gt/
func ExprGt(expr1, expr2 interface{}) bson.D {
	return bson.D{{Key: opGt, Value: bson.A{expr1, expr2}}}
}

// ExprGte: first operand orders at or after the second.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/gte/
func ExprGte(expr1, expr2 interface{}) bson.D {
	return bson.D{{Key: opGte, Value: bson.A{expr1, expr2}}}
}

// ExprLt: first operand orders before the second.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/lt/
func ExprLt(expr1, expr2 interface{}) bson.D {
	return bson.D{{Key: opLt, Value: bson.A{expr1, expr2}}}
}

// ExprLte: first operand orders at or before the second.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/lte/
func ExprLte(expr1, expr2 interface{}) bson.D {
	return bson.D{{Key: opLte, Value: bson.A{expr1, expr2}}}
}

// --- Boolean Expression Operators ---
// The evaluator's truthiness: null and missing are false, false is false,
// everything else is true.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/#boolean-expression-operators

// ExprBoolAnd: every operand is truthy.
//
// MongoDB equivalent: { $and: [ expr1, expr2, ... ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/and/
func ExprBoolAnd(expressions ...interface{}) bson.D {
	return bson.D{{Key: opAnd, Value: bson.A(expressions)}}
}

// ExprBoolOr: at least one operand is truthy.
//
// MongoDB equivalent: { $or: [ expr1, expr2, ... ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/or/
func ExprBoolOr(expressions ...interface{}) bson.D {
	return bson.D{{Key: opOr, Value: bson.A(expressions)}}
}

// ExprBoolNot: the operand's boolean opposite.
//
// MongoDB equivalent: { $not: [ expression ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/not/
func ExprBoolNot(expression interface{}) bson.D {
	return bson.D{{Key: opNot, Value: bson.A{expression}}}
}

// --- Conditional Expression Operators ---
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/#conditional-expression-operators

// ExprCond: if/then/else over expressions.
//
// MongoDB equivalent: { $cond: { if: bool, then: trueExpr, else: falseExpr } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/cond/
//
// Example:
//
//	gmqb.ExprCond(
//	    gmqb.ExprGte("$qty", 250),
//	    "high",
//	    "low",
//	)
func ExprCond(boolExpr, trueExpr, falseExpr interface{}) bson.D {
	return bson.D{{Key: opCond, Value: bson.D{
		{Key: "if", Value: boolExpr},
		{Key: "then", Value: trueExpr},
		{Key: "else", Value: falseExpr},
	}}}
}

// ExprIfNull: the expression's value unless it is null or missing, else
// the replacement.
//
// MongoDB equivalent: { $ifNull: [ expression, replacement ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/ifNull/
func ExprIfNull(expression, replacement interface{}) bson.D {
	return bson.D{{Key: opIfNull, Value: bson.A{expression, replacement}}}
}

// SwitchBranch is one case/then pair of a $switch expression.
type SwitchBranch struct {
	Case interface{}
	Then interface{}
}

// ExprSwitch: the first branch whose Case is truthy yields its Then; with
// no match and no default, evaluation fails the stage.
//
// MongoDB equivalent: { $switch: { branches: [...], default: defaultExpr } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/switch/
//
// Example:
//
//	gmqb.ExprSwitch([]gmqb.SwitchBranch{
//	    {Case: gmqb.ExprGte("$age", 65), Then: "senior"},
//	    {Case: gmqb.ExprGte("$age", 18), Then: "adult"},
//	}, "minor")
func ExprSwitch(branches []SwitchBranch, defaultExpr interface{}) bson.D {
	branchArr := make(bson.A, len(branches))
	for i, b := range branches {
		branchArr[i] = bson.D{{Key: "case", Value: b.Case}, {Key: "then", Value: b.Then}}
	}
	doc := bson.D{{Key: "branches", Value: branchArr}}
	if defaultExpr != nil {
		doc = append(doc, bson.E{Key: "default", Value: defaultExpr})
	}
	return bson.D{{Key: opSwitch, Value: doc}}
}
