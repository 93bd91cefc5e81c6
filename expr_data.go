package gmqb

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// String, array, date, and type-conversion expression constructors. Apart
// from $concat, $year, and $month (which EvalExpr computes) these build
// wire-compatible expression documents that the evaluator passes through
// under its permissive unknown-operator rule.

// --- String Expression Operators ---
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/#string-expression-operators

// ExprConcat joins string operands. The evaluator computes it: a null or
// missing operand yields null, a non-string operand fails the stage.
//
// MongoDB equivalent: { $concat: [ expr1, expr2, ... ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/concat/
func ExprConcat(expressions ...interface{}) bson.D {
	return bson.D{{Key: opConcat, Value: bson.A(expressions)}}
}

// ExprSubstr: length characters of the string starting at the 0-based
// start index.
//
// MongoDB equivalent: { $substr: [ string, start, length ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/substr/
func ExprSubstr(str interface{}, start, length int) bson.D {
	return bson.D{{Key: "$substr", Value: bson.A{str, start, length}}}
}

// ExprToLower lowercases the operand.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/toLower/
func ExprToLower(expression interface{}) bson.D {
	return bson.D{{Key: "$toLower", Value: expression}}
}

// ExprToUpper uppercases the operand.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/toUpper/
func ExprToUpper(expression interface{}) bson.D {
	return bson.D{{Key: "$toUpper", Value: expression}}
}

// ExprTrim strips whitespace, or the given characters, from both ends.
// Pass nil chars for plain whitespace trimming.
//
// MongoDB equivalent: { $trim: { input: expr, chars: charsExpr } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/trim/
func ExprTrim(input interface{}, chars interface{}) bson.D {
	doc := bson.D{{Key: "input", Value: input}}
	if chars != nil {
		doc = append(doc, bson.E{Key: "chars", Value: chars})
	}
	return bson.D{{Key: "$trim", Value: doc}}
}

// ExprLTrim strips from the left end only.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/ltrim/
func ExprLTrim(input interface{}, chars interface{}) bson.D {
	doc := bson.D{{Key: "input", Value: input}}
	if chars != nil {
		doc = append(doc, bson.E{Key: "chars", Value: chars})
	}
	return bson.D{{Key: "$ltrim", Value: doc}}
}

// ExprRTrim strips from the right end only.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/rtrim/
func ExprRTrim(input interface{}, chars interface{}) bson.D {
	doc := bson.D{{Key: "input", Value: input}}
	if chars != nil {
		doc = append(doc, bson.E{Key: "chars", Value: chars})
	}
	return bson.D{{Key: "$rtrim", Value: doc}}
}

// ExprStrLenCP: string length in UTF-8 code points.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/strLenCP/
func ExprStrLenCP(expression interface{}) bson.D {
	return bson.D{{Key: "$strLenCP", Value: expression}}
}

// ExprRegexMatch: whether the input matches the pattern.
//
// MongoDB equivalent: { $regexMatch: { input: str, regex: pattern, options: opts } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/regexMatch/
func ExprRegexMatch(input interface{}, regex string, options string) bson.D {
	doc := bson.D{{Key: "input", Value: input}, {Key: "regex", Value: regex}}
	if options != "" {
		doc = append(doc, bson.E{Key: "options", Value: options})
	}
	return bson.D{{Key: "$regexMatch", Value: doc}}
}

// ExprRegexFind: the first match's capture details.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/regexFind/
func ExprRegexFind(input interface{}, regex string, options string) bson.D {
	doc := bson.D{{Key: "input", Value: input}, {Key: "regex", Value: regex}}
	if options != "" {
		doc = append(doc, bson.E{Key: "options", Value: options})
	}
	return bson.D{{Key: "$regexFind", Value: doc}}
}

// ExprRegexFindAll: every match's capture details.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/regexFindAll/
func ExprRegexFindAll(input interface{}, regex string, options string) bson.D {
	doc := bson.D{{Key: "input", Value: input}, {Key: "regex", Value: regex}}
	if options != "" {
		doc = append(doc, bson.E{Key: "options", Value: options})
	}
	return bson.D{{Key: "$regexFindAll", Value: doc}}
}

// ExprSplit: the string split on a delimiter, as an array.
//
// MongoDB equivalent: { $split: [ string, delimiter ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/split/
func ExprSplit(str, delimiter interface{}) bson.D {
	return bson.D{{Key: "$split", Value: bson.A{str, delimiter}}}
}

// ExprReplaceOne substitutes the first occurrence of find.
//
// MongoDB equivalent: { $replaceOne: { input: str, find: substr, replacement: repl } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/replaceOne/
func ExprReplaceOne(input, find, replacement interface{}) bson.D {
	return bson.D{{Key: "$replaceOne", Value: bson.D{
		{Key: "input", Value: input},
		{Key: "find", Value: find},
		{Key: "replacement", Value: replacement},
	}}}
}

// ExprReplaceAll substitutes every occurrence of find.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/replaceAll/
func ExprReplaceAll(input, find, replacement interface{}) bson.D {
	return bson.D{{Key: "$replaceAll", Value: bson.D{
		{Key: "input", Value: input},
		{Key: "find", Value: find},
		{Key: "replacement", Value: replacement},
	}}}
}

// --- Array Expression Operators ---
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/#array-expression-operators

// ExprArrayElemAt: the element at index; negative indexes count from the
// end.
//
// MongoDB equivalent: { $arrayElemAt: [ array, index ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/arrayElemAt/
func ExprArrayElemAt(array interface{}, index int) bson.D {
	return bson.D{{Key: "$arrayElemAt", Value: bson.A{array, index}}}
}

// ExprConcatArrays: the operand arrays joined end to end.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/concatArrays/
func ExprConcatArrays(arrays ...interface{}) bson.D {
	return bson.D{{Key: "$concatArrays", Value: bson.A(arrays)}}
}

// ExprFilter: the elements of input for which cond is truthy, with each
// element bound as $$<as> inside cond.
//
// MongoDB equivalent: { $filter: { input: array, as: var, cond: expr } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/filter/
//
// Example:
//
//	gmqb.ExprFilter("$items", "item", gmqb.ExprGte("$$item.price", 100))
func ExprFilter(input interface{}, as string, cond interface{}) bson.D {
	return bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: input},
		{Key: "as", Value: as},
		{Key: "cond", Value: cond},
	}}}
}

// ExprIsArray: whether the operand is a sequence.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/isArray/
func ExprIsArray(expression interface{}) bson.D {
	return bson.D{{Key: "$isArray", Value: expression}}
}

// ExprMap: in evaluated per element (bound as $$<as>), yielding the
// transformed array.
//
// MongoDB equivalent: { $map: { input: array, as: var, in: expr } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/map/
func ExprMap(input interface{}, as string, in interface{}) bson.D {
	return bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: input},
		{Key: "as", Value: as},
		{Key: "in", Value: in},
	}}}
}

// ExprReduce folds the array left to right: in sees $$value (the
// accumulator) and $$this (the element).
//
// MongoDB equivalent: { $reduce: { input: array, initialValue: init, in: expr } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/reduce/
func ExprReduce(input, initialValue, in interface{}) bson.D {
	return bson.D{{Key: "$reduce", Value: bson.D{
		{Key: "input", Value: input},
		{Key: "initialValue", Value: initialValue},
		{Key: "in", Value: in},
	}}}
}

// ExprSlice: a window of the array, as [array, n] or [array, position, n].
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/slice/
func ExprSlice(array interface{}, args ...int) bson.D {
	a := bson.A{array}
	for _, v := range args {
		a = append(a, v)
	}
	return bson.D{{Key: opSlice, Value: a}}
}

// ExprIn: whether value occurs in array. This is the expression-position
// $in (two operands), not the query operator of the same name.
//
// MongoDB equivalent: { $in: [ value, array ] }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/in/
func ExprIn(value, array interface{}) bson.D {
	return bson.D{{Key: opIn, Value: bson.A{value, array}}}
}

// ExprIndexOfArray: the index of value's first occurrence, or -1.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/indexOfArray/
func ExprIndexOfArray(array, value interface{}) bson.D {
	return bson.D{{Key: "$indexOfArray", Value: bson.A{array, value}}}
}

// ExprReverseArray: the array with element order reversed.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/reverseArray/
func ExprReverseArray(expression interface{}) bson.D {
	return bson.D{{Key: "$reverseArray", Value: expression}}
}

// ExprSortArray: the array reordered by sortBy (1/-1 for scalars, a key
// spec for documents).
//
// MongoDB equivalent: { $sortArray: { input: array, sortBy: spec } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/sortArray/
func ExprSortArray(input interface{}, sortBy interface{}) bson.D {
	return bson.D{{Key: "$sortArray", Value: bson.D{
		{Key: "input", Value: input},
		{Key: "sortBy", Value: sortBy},
	}}}
}

// ExprZip transposes the input arrays element-wise.
//
// MongoDB equivalent: { $zip: { inputs: [arr1, arr2], useLongestLength: true, defaults: [...] } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/zip/
func ExprZip(inputs bson.A, useLongestLength bool, defaults bson.A) bson.D {
	doc := bson.D{{Key: "inputs", Value: inputs}}
	if useLongestLength {
		doc = append(doc, bson.E{Key: "useLongestLength", Value: true})
	}
	if len(defaults) > 0 {
		doc = append(doc, bson.E{Key: "defaults", Value: defaults})
	}
	return bson.D{{Key: "$zip", Value: doc}}
}

// ExprObjectToArray: the document as an array of {k, v} pairs.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/objectToArray/
func ExprObjectToArray(expression interface{}) bson.D {
	return bson.D{{Key: "$objectToArray", Value: expression}}
}

// ExprArrayToObject: an array of {k, v} pairs back into a document.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/arrayToObject/
func ExprArrayToObject(expression interface{}) bson.D {
	return bson.D{{Key: "$arrayToObject", Value: expression}}
}

// --- Date Expression Operators ---
// ExprYear and ExprMonth are evaluated (UTC); the rest of the date family
// is buildable surface.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/#date-expression-operators

// ExprDateFromString parses a date string, optionally with a format and
// timezone; pass nil to omit either.
//
// MongoDB equivalent: { $dateFromString: { dateString: str, format: fmt, timezone: tz } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/dateFromString/
func ExprDateFromString(dateString interface{}, format, timezone interface{}) bson.D {
	doc := bson.D{{Key: "dateString", Value: dateString}}
	if format != nil {
		doc = append(doc, bson.E{Key: "format", Value: format})
	}
	if timezone != nil {
		doc = append(doc, bson.E{Key: "timezone", Value: timezone})
	}
	return bson.D{{Key: "$dateFromString", Value: doc}}
}

// ExprDateToString formats a date; pass nil to omit format or timezone.
//
// MongoDB equivalent: { $dateToString: { date: dateExpr, format: fmt, timezone: tz } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/dateToString/
func ExprDateToString(date interface{}, format, timezone interface{}) bson.D {
	doc := bson.D{{Key: "date", Value: date}}
	if format != nil {
		doc = append(doc, bson.E{Key: "format", Value: format})
	}
	if timezone != nil {
		doc = append(doc, bson.E{Key: "timezone", Value: timezone})
	}
	return bson.D{{Key: "$dateToString", Value: doc}}
}

// ExprDateAdd shifts a date forward by amount units.
//
// MongoDB equivalent: { $dateAdd: { startDate: date, unit: "hour", amount: 3 } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/dateAdd/
func ExprDateAdd(startDate interface{}, unit string, amount interface{}) bson.D {
	return bson.D{{Key: "$dateAdd", Value: bson.D{
		{Key: "startDate", Value: startDate},
		{Key: "unit", Value: unit},
		{Key: "amount", Value: amount},
	}}}
}

// ExprDateSubtract shifts a date backward by amount units.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/dateSubtract/
func ExprDateSubtract(startDate interface{}, unit string, amount interface{}) bson.D {
	return bson.D{{Key: "$dateSubtract", Value: bson.D{
		{Key: "startDate", Value: startDate},
		{Key: "unit", Value: unit},
		{Key: "amount", Value: amount},
	}}}
}

// ExprDateDiff: the span between two dates in the given unit.
//
// MongoDB equivalent: { $dateDiff: { startDate: d1, endDate: d2, unit: "day" } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/dateDiff/
func ExprDateDiff(startDate, endDate interface{}, unit string) bson.D {
	return bson.D{{Key: "$dateDiff", Value: bson.D{
		{Key: "startDate", Value: startDate},
		{Key: "endDate", Value: endDate},
		{Key: "unit", Value: unit},
	}}}
}

// ExprDateTrunc zeroes a date below the given unit.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/dateTrunc/
func ExprDateTrunc(date interface{}, unit string) bson.D {
	return bson.D{{Key: "$dateTrunc", Value: bson.D{
		{Key: "date", Value: date},
		{Key: "unit", Value: unit},
	}}}
}

// ExprYear: the date's year. Evaluated.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/year/
func ExprYear(date interface{}) bson.D { return bson.D{{Key: opYear, Value: date}} }

// ExprMonth: the date's month, 1-12. Evaluated.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/month/
func ExprMonth(date interface{}) bson.D { return bson.D{{Key: opMonth, Value: date}} }

// ExprDayOfMonth: 1-31.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/dayOfMonth/
func ExprDayOfMonth(date interface{}) bson.D { return bson.D{{Key: "$dayOfMonth", Value: date}} }

// ExprHour: 0-23.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/hour/
func ExprHour(date interface{}) bson.D { return bson.D{{Key: "$hour", Value: date}} }

// ExprMinute: 0-59.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/minute/
func ExprMinute(date interface{}) bson.D { return bson.D{{Key: "$minute", Value: date}} }

// ExprSecond: 0-59.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/second/
func ExprSecond(date interface{}) bson.D { return bson.D{{Key: "$second", Value: date}} }

// ExprMillisecond: 0-999.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/millisecond/
func ExprMillisecond(date interface{}) bson.D { return bson.D{{Key: "$millisecond", Value: date}} }

// ExprDayOfWeek: 1 (Sunday) through 7 (Saturday).
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/dayOfWeek/
func ExprDayOfWeek(date interface{}) bson.D { return bson.D{{Key: "$dayOfWeek", Value: date}} }

// ExprDayOfYear: 1-366.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/dayOfYear/
func ExprDayOfYear(date interface{}) bson.D { return bson.D{{Key: "$dayOfYear", Value: date}} }

// ExprISOWeek: ISO 8601 week number, 1-53.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/isoWeek/
func ExprISOWeek(date interface{}) bson.D { return bson.D{{Key: "$isoWeek", Value: date}} }

// ExprISOWeekYear: ISO 8601 week-numbering year.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/isoWeekYear/
func ExprISOWeekYear(date interface{}) bson.D { return bson.D{{Key: "$isoWeekYear", Value: date}} }

// --- Type Expression Operators ---
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/#type-expression-operators

// ExprConvert coerces a value to a named type, with optional onError /
// onNull fallbacks (pass nil to omit).
//
// MongoDB equivalent: { $convert: { input: expr, to: type, onError: errExpr, onNull: nullExpr } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/convert/
func ExprConvert(input interface{}, to interface{}, onError, onNull interface{}) bson.D {
	doc := bson.D{
		{Key: "input", Value: input},
		{Key: "to", Value: to},
	}
	if onError != nil {
		doc = append(doc, bson.E{Key: "onError", Value: onError})
	}
	if onNull != nil {
		doc = append(doc, bson.E{Key: "onNull", Value: onNull})
	}
	return bson.D{{Key: "$convert", Value: doc}}
}

// ExprToBool coerces to boolean. See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/toBool/
func ExprToBool(expr interface{}) bson.D { return bson.D{{Key: "$toBool", Value: expr}} }

// ExprToInt coerces to int32. See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/toInt/
func ExprToInt(expr interface{}) bson.D { return bson.D{{Key: "$toInt", Value: expr}} }

// ExprToLong coerces to int64. See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/toLong/
func ExprToLong(expr interface{}) bson.D { return bson.D{{Key: "$toLong", Value: expr}} }

// ExprToDouble coerces to double. See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/toDouble/
func ExprToDouble(expr interface{}) bson.D { return bson.D{{Key: "$toDouble", Value: expr}} }

// ExprToDecimal coerces to decimal128. See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/toDecimal/
func ExprToDecimal(expr interface{}) bson.D { return bson.D{{Key: "$toDecimal", Value: expr}} }

// ExprToString coerces to string. See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/toString/
func ExprToString(expr interface{}) bson.D { return bson.D{{Key: "$toString", Value: expr}} }

// ExprToObjectId coerces to ObjectId. See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/toObjectId/
func ExprToObjectId(expr interface{}) bson.D { return bson.D{{Key: "$toObjectId", Value: expr}} }

// ExprToDate coerces to Date. See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/toDate/
func ExprToDate(expr interface{}) bson.D { return bson.D{{Key: "$toDate", Value: expr}} }

// ExprType names the operand's BSON type. See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/type/
func ExprType(expr interface{}) bson.D { return bson.D{{Key: opType, Value: expr}} }

// ExprIsNumber: whether the operand is numeric. See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/isNumber/
func ExprIsNumber(expr interface{}) bson.D { return bson.D{{Key: "$isNumber", Value: expr}} }
