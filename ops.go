package gmqb

// Operator names shared between the builder surface (Filter/Updater/Pipeline
// and the Expr*/Acc* constructors) and the executors (Matches, Apply,
// RunPipeline, EvalExpr). One vocabulary on both sides: a builder cannot
// grow an operator the executors have never heard of without the divergence
// being visible right here.

// Query operators.
const (
	opEq        = "$eq"
	opNe        = "$ne"
	opGt        = "$gt"
	opGte       = "$gte"
	opLt        = "$lt"
	opLte       = "$lte"
	opIn        = "$in"
	opNin       = "$nin"
	opAnd       = "$and"
	opOr        = "$or"
	opNor       = "$nor"
	opNot       = "$not"
	opExists    = "$exists"
	opType      = "$type"
	opMod       = "$mod"
	opRegex     = "$regex"
	opOptions   = "$options"
	opAll       = "$all"
	opElemMatch = "$elemMatch"
	opSize      = "$size"
)

// Query operators the matcher accepts for wire compatibility but does not
// evaluate; each falls through the permissive unknown-operator path.
const (
	opExpr          = "$expr"
	opWhere         = "$where"
	opJSONSchema    = "$jsonSchema"
	opText          = "$text"
	opComment       = "$comment"
	opGeoIntersects = "$geoIntersects"
	opGeoWithin     = "$geoWithin"
	opNear          = "$near"
	opNearSphere    = "$nearSphere"
	opGeometry      = "$geometry"
	opMaxDistance   = "$maxDistance"
	opMinDistance   = "$minDistance"
	opBitsAllClear  = "$bitsAllClear"
	opBitsAllSet    = "$bitsAllSet"
	opBitsAnyClear  = "$bitsAnyClear"
	opBitsAnySet    = "$bitsAnySet"
)

// Update operators and the $push modifiers.
const (
	opSet         = "$set"
	opUnset       = "$unset"
	opInc         = "$inc"
	opMul         = "$mul"
	opMin         = "$min"
	opMax         = "$max"
	opRename      = "$rename"
	opCurrentDate = "$currentDate"
	opSetOnInsert = "$setOnInsert"
	opAddToSet    = "$addToSet"
	opPush        = "$push"
	opPop         = "$pop"
	opPull        = "$pull"
	opPullAll     = "$pullAll"
	opBit         = "$bit"
	opEach        = "$each"
	opPosition    = "$position"
	opSlice       = "$slice"
	opSort        = "$sort"
)

// Pipeline stage names. $set/$unset/$sort/$push double as update operators
// and reuse those constants at their call sites.
const (
	stMatch        = "$match"
	stProject      = "$project"
	stGroup        = "$group"
	stLimit        = "$limit"
	stSkip         = "$skip"
	stCount        = "$count"
	stUnwind       = "$unwind"
	stLookup       = "$lookup"
	stAddFields    = "$addFields"
	stVectorSearch = "$vectorSearch"
	stFacet        = "$facet"
	stBucket       = "$bucket"
	stBucketAuto   = "$bucketAuto"
	stSample       = "$sample"
	stReplaceRoot  = "$replaceRoot"
	stReplaceWith  = "$replaceWith"
	stRedact       = "$redact"
	stSortByCount  = "$sortByCount"
	stUnionWith    = "$unionWith"
	stOut          = "$out"
	stMerge        = "$merge"
	stGraphLookup  = "$graphLookup"
	stGeoNear      = "$geoNear"
	stFill         = "$fill"
	stDensify      = "$densify"
	stWindowFields = "$setWindowFields"
)

// Expression operators the interpreter evaluates. The larger buildable-only
// expression surface (string, date, array, and type-conversion operators in
// expr_data.go) rides the permissive passthrough instead.
const (
	opLiteral  = "$literal"
	opCmp      = "$cmp"
	opAdd      = "$add"
	opSubtract = "$subtract"
	opMultiply = "$multiply"
	opDivide   = "$divide"
	opConcat   = "$concat"
	opCond     = "$cond"
	opIfNull   = "$ifNull"
	opSwitch   = "$switch"
	opLet      = "$let"
	opYear     = "$year"
	opMonth    = "$month"
)

// Accumulators.
const (
	accSum   = "$sum"
	accAvg   = "$avg"
	accFirst = "$first"
	accLast  = "$last"
)
