package gmqb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// The evaluated expression constructors are checked both for the operator
// key they emit and for the value EvalExpr computes from the built
// document.
func TestEvaluatedExprConstructorsRoundTrip(t *testing.T) {
	doc := bson.D{
		{Key: "price", Value: int64(10)},
		{Key: "tax", Value: int64(2)},
		{Key: "qty", Value: int64(300)},
	}
	cases := []struct {
		name string
		expr bson.D
		key  string
		want interface{}
	}{
		{"add", ExprAdd("$price", "$tax"), "$add", int64(12)},
		{"subtract", ExprSubtract("$price", "$tax"), "$subtract", int64(8)},
		{"multiply", ExprMultiply("$price", "$tax"), "$multiply", int64(20)},
		{"divide", ExprDivide("$price", "$tax"), "$divide", 5.0},
		{"cond", ExprCond(ExprGte("$qty", int64(250)), "high", "low"), "$cond", "high"},
		{"ifNull", ExprIfNull("$missingField", "N/A"), "$ifNull", "N/A"},
		{"concat", ExprConcat("a", "-", "b"), "$concat", "a-b"},
		{"gte", ExprGte("$qty", int64(250)), "$gte", true},
		{"literal", ExprLiteral("$notAField"), "$literal", "$notAField"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.key, tc.expr[0].Key)
			got, err := EvalExpr(tc.expr, doc, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExprSwitchBuildsBranchesAndEvaluates(t *testing.T) {
	d := ExprSwitch([]SwitchBranch{
		{Case: ExprGte("$age", int64(65)), Then: "senior"},
		{Case: ExprGte("$age", int64(18)), Then: "adult"},
	}, "minor")
	require.Equal(t, "$switch", d[0].Key)

	got, err := EvalExpr(d, bson.D{{Key: "age", Value: int64(40)}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "adult", got)
}

func TestExprLetBuildsAndEvaluates(t *testing.T) {
	d := ExprLet(bson.D{{Key: "total", Value: ExprAdd("$price", "$tax")}}, "$$total")
	require.Equal(t, "$let", d[0].Key)

	got, err := EvalExpr(d, bson.D{{Key: "price", Value: int64(3)}, {Key: "tax", Value: int64(4)}}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 7, got)
}

// The buildable expression surface: the emitted operator key is the whole
// contract checked here. The evaluator computes $year; it passes the others
// through.
func TestBuildableExprConstructorKeys(t *testing.T) {
	cases := []struct {
		name string
		expr bson.D
		key  string
	}{
		{"toLower", ExprToLower("$name"), "$toLower"},
		{"regexMatch", ExprRegexMatch("$email", `^test`, "i"), "$regexMatch"},
		{"arrayElemAt", ExprArrayElemAt("$items", 0), "$arrayElemAt"},
		{"filter", ExprFilter("$items", "item", ExprGte("$$item.price", 100)), "$filter"},
		{"map", ExprMap("$items", "item", ExprMultiply("$$item.price", "$$item.qty")), "$map"},
		{"dateAdd", ExprDateAdd("$orderDate", "day", 3), "$dateAdd"},
		{"year", ExprYear("$createdAt"), "$year"},
		{"convert", ExprConvert("$value", "double", nil, nil), "$convert"},
		{"setEquals", ExprSetEquals("$a", "$b"), "$setEquals"},
		{"setUnion", ExprSetUnion("$a", "$b"), "$setUnion"},
		{"mergeObjects", ExprMergeObjects("$defaults", "$overrides"), "$mergeObjects"},
		{"rand", ExprRand(), "$rand"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.key, tc.expr[0].Key)
		})
	}
}

// --- Accumulators ---

func TestAccumulatorConstructorKeys(t *testing.T) {
	assert.Equal(t, "$sum", AccSum(1)[0].Key)
	assert.Equal(t, "$avg", AccAvg("$score")[0].Key)
	assert.Equal(t, "$first", AccFirst("$name")[0].Key)
	assert.Equal(t, "$push", AccPush("$item")[0].Key)
	assert.Equal(t, "$count", AccCount()[0].Key)
	assert.Equal(t, "$top", AccTop(bson.D{{Key: "score", Value: -1}}, "$name")[0].Key)
}

// A built accumulator feeds straight into a running $group stage.
func TestBuiltAccumulatorDrivesGroupStage(t *testing.T) {
	p := NewPipeline().Group(GroupSpec("$cat",
		GroupAcc("total", AccSum("$n")),
		GroupAcc("biggest", AccMax("$n")),
	))
	out, err := p.Run(context.Background(), []bson.D{
		{{Key: "cat", Value: "a"}, {Key: "n", Value: int64(2)}},
		{{Key: "cat", Value: "a"}, {Key: "n", Value: int64(5)}},
	}, Env{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.EqualValues(t, 7, Get(out[0], "total"))
	assert.EqualValues(t, 5, Get(out[0], "biggest"))
}
