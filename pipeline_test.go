package gmqb

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestPipelineStartsEmpty(t *testing.T) {
	assert.True(t, NewPipeline().IsEmpty())
}

// Every stage method emits a single-key stage document under the stage's
// wire name, the same key runStage dispatches on.
func TestStageMethodsEmitTheirWireKeys(t *testing.T) {
	cases := []struct {
		name string
		p    Pipeline
		key  string
	}{
		{"match", NewPipeline().Match(Eq("status", "active")), "$match"},
		{"project", NewPipeline().Project(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 0}}), "$project"},
		{"group", NewPipeline().Group(GroupSpec("$country", GroupAcc("total", AccSum(1)))), "$group"},
		{"sort", NewPipeline().Sort(Desc("age")), "$sort"},
		{"unwind", NewPipeline().Unwind("$tags"), "$unwind"},
		{"lookup", NewPipeline().Lookup(LookupOpts{From: "orders", LocalField: "userId", ForeignField: "_id", As: "userOrders"}), "$lookup"},
		{"addFields", NewPipeline().AddFields(AddFieldsSpec(AddField("isAdult", ExprGte("$age", 18)))), "$addFields"},
		{"unset", NewPipeline().Unset("password", "ssn"), "$unset"},
		{"count", NewPipeline().Count("total"), "$count"},
		{"sample", NewPipeline().Sample(5), "$sample"},
		{"sortByCount", NewPipeline().SortByCount("$status"), "$sortByCount"},
		{"out", NewPipeline().Out("archive"), "$out"},
		{"replaceRoot", NewPipeline().ReplaceRoot("$address"), "$replaceRoot"},
		{"unionWith", NewPipeline().UnionWith("archive", nil), "$unionWith"},
		{"bucket", NewPipeline().Bucket(BucketOpts{GroupBy: "$age", Boundaries: []interface{}{0, 18, 65, 100}, Default: "other"}), "$bucket"},
		{"rawStage", NewPipeline().RawStage("$search", bson.D{{Key: "text", Value: bson.D{{Key: "query", Value: "test"}}}}), "$search"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stages := tc.p.BsonD()
			require.Len(t, stages, 1)
			assert.Equal(t, tc.key, stages[0][0].Key)
		})
	}
}

func TestSkipThenLimitKeepOrder(t *testing.T) {
	stages := NewPipeline().Skip(20).Limit(10).BsonD()
	require.Len(t, stages, 2)
	assert.Equal(t, "$skip", stages[0][0].Key)
	assert.Equal(t, "$limit", stages[1][0].Key)
}

func TestFacetCollectsSubPipelines(t *testing.T) {
	stages := NewPipeline().Facet(map[string]Pipeline{
		"byAge": NewPipeline().Group(GroupSpec("$ageRange")),
		"total": NewPipeline().Count("count"),
	}).BsonD()
	assert.Equal(t, "$facet", stages[0][0].Key)
	assert.Len(t, stages[0][0].Value.(bson.D), 2)
}

func TestPipelineChainingIsImmutable(t *testing.T) {
	p1 := NewPipeline().Match(Eq("a", 1))
	p2 := p1.Limit(10)
	assert.Len(t, p1.BsonD(), 1)
	assert.Len(t, p2.BsonD(), 2)
}

// A multi-stage built pipeline both carries its stages in order and
// produces the right result when the interpreter runs it.
func TestBuiltPipelineRunsEndToEnd(t *testing.T) {
	p := NewPipeline().
		Match(Gte("age", int64(18))).
		Group(GroupSpec("$country", GroupAcc("count", AccSum(1)))).
		Sort(Desc("count")).
		Limit(10)

	stages := p.BsonD()
	require.Len(t, stages, 4)
	for i, want := range []string{"$match", "$group", "$sort", "$limit"} {
		assert.Equal(t, want, stages[i][0].Key, "stage %d", i)
	}

	docs := []bson.D{
		{{Key: "age", Value: int64(25)}, {Key: "country", Value: "NZ"}},
		{{Key: "age", Value: int64(12)}, {Key: "country", Value: "NZ"}},
		{{Key: "age", Value: int64(40)}, {Key: "country", Value: "NZ"}},
		{{Key: "age", Value: int64(33)}, {Key: "country", Value: "AU"}},
	}
	out, err := p.Run(context.Background(), docs, Env{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "NZ", Get(out[0], "_id"))
	assert.EqualValues(t, 2, Get(out[0], "count"))
	assert.Equal(t, "AU", Get(out[1], "_id"))
}

func TestPipelineJSONRendersStageArray(t *testing.T) {
	p := NewPipeline().Match(Eq("a", 1)).Limit(5)
	var arr []interface{}
	require.NoError(t, json.Unmarshal([]byte(p.JSON()), &arr))
	assert.Len(t, arr, 2)
}

func TestSortSpecHelpers(t *testing.T) {
	asc := Asc("name")
	assert.Equal(t, "name", asc[0].Key)
	assert.Equal(t, 1, asc[0].Value)

	desc := Desc("name")
	assert.Equal(t, "name", desc[0].Key)
	assert.Equal(t, -1, desc[0].Value)
}
