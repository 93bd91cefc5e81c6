package gmqb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestRunPipelineMatchThenSort(t *testing.T) {
	docs := []bson.D{
		{{Key: "age", Value: int64(25)}},
		{{Key: "age", Value: int64(30)}},
		{{Key: "age", Value: int64(35)}},
	}
	out, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$match", Value: bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: int64(30)}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "age", Value: -1}}}},
	}, docs, Env{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.EqualValues(t, 35, firstValueAgg(out[0], "age"))
	assert.EqualValues(t, 30, firstValueAgg(out[1], "age"))
}

func firstValueAgg(d bson.D, key string) interface{} {
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

func TestRunPipelineGroupSumAndAvg(t *testing.T) {
	docs := []bson.D{
		{{Key: "category", Value: "widgets"}, {Key: "quantity", Value: int64(10)}, {Key: "price", Value: int64(100)}},
		{{Key: "category", Value: "widgets"}, {Key: "quantity", Value: int64(20)}, {Key: "price", Value: int64(150)}},
		{{Key: "category", Value: "widgets"}, {Key: "quantity", Value: int64(8)}, {Key: "price", Value: int64(120)}},
		{{Key: "category", Value: "gadgets"}, {Key: "quantity", Value: int64(5)}, {Key: "price", Value: int64(200)}},
		{{Key: "category", Value: "gadgets"}, {Key: "quantity", Value: int64(15)}, {Key: "price", Value: int64(250)}},
	}
	out, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$category"},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$quantity"}}},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$price"}}},
		}}},
	}, docs, Env{})
	require.NoError(t, err)
	require.Len(t, out, 2)

	byID := map[string]bson.D{}
	for _, d := range out {
		byID[firstValueAgg(d, "_id").(string)] = d
	}
	assert.EqualValues(t, 38, firstValueAgg(byID["widgets"], "total"))
	assert.InDelta(t, 123.33, toF(firstValueAgg(byID["widgets"], "avg")), 0.1)
	assert.EqualValues(t, 20, firstValueAgg(byID["gadgets"], "total"))
	assert.EqualValues(t, 225, firstValueAgg(byID["gadgets"], "avg"))
}

func toF(v interface{}) float64 {
	f, _ := asFloat(v)
	return f
}

func TestRunPipelineGroupAccumulators(t *testing.T) {
	docs := []bson.D{
		{{Key: "cat", Value: "a"}, {Key: "n", Value: int64(3)}},
		{{Key: "cat", Value: "a"}, {Key: "n", Value: int64(1)}},
		{{Key: "cat", Value: "a"}, {Key: "n", Value: int64(2)}},
	}
	out, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$cat"},
			{Key: "mn", Value: bson.D{{Key: "$min", Value: "$n"}}},
			{Key: "mx", Value: bson.D{{Key: "$max", Value: "$n"}}},
			{Key: "f", Value: bson.D{{Key: "$first", Value: "$n"}}},
			{Key: "l", Value: bson.D{{Key: "$last", Value: "$n"}}},
			{Key: "all", Value: bson.D{{Key: "$push", Value: "$n"}}},
			{Key: "set", Value: bson.D{{Key: "$addToSet", Value: "$cat"}}},
		}}},
	}, docs, Env{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	d := out[0]
	assert.EqualValues(t, 1, firstValueAgg(d, "mn"))
	assert.EqualValues(t, 3, firstValueAgg(d, "mx"))
	assert.EqualValues(t, 3, firstValueAgg(d, "f"))
	assert.EqualValues(t, 2, firstValueAgg(d, "l"))
	assert.Equal(t, bson.A{int64(3), int64(1), int64(2)}, firstValueAgg(d, "all"))
	assert.Equal(t, bson.A{"a"}, firstValueAgg(d, "set"))
}

func TestRunPipelineProjectIncludeExclude(t *testing.T) {
	doc := bson.D{{Key: "_id", Value: "1"}, {Key: "a", Value: int64(1)}, {Key: "b", Value: int64(2)}}
	out, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$project", Value: bson.D{{Key: "a", Value: 1}, {Key: "_id", Value: 0}}}},
	}, []bson.D{doc}, Env{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, IsMissing(Get(out[0], "_id")))
	assert.True(t, IsMissing(Get(out[0], "b")))
	assert.EqualValues(t, 1, Get(out[0], "a"))

	out, err = RunPipeline(context.Background(), []bson.D{
		{{Key: "$project", Value: bson.D{{Key: "b", Value: 0}}}},
	}, []bson.D{doc}, Env{})
	require.NoError(t, err)
	assert.True(t, IsMissing(Get(out[0], "b")))
	assert.EqualValues(t, 1, Get(out[0], "a"))
	assert.Equal(t, "1", Get(out[0], "_id"))
}

func TestRunPipelineUnwindWithOptions(t *testing.T) {
	docs := []bson.D{
		{{Key: "_id", Value: "1"}, {Key: "tags", Value: bson.A{"x", "y"}}},
		{{Key: "_id", Value: "2"}, {Key: "tags", Value: bson.A{}}},
		{{Key: "_id", Value: "3"}},
	}
	out, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$tags"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
			{Key: "includeArrayIndex", Value: "idx"},
		}}},
	}, docs, Env{})
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, "x", Get(out[0], "tags"))
	assert.EqualValues(t, 0, Get(out[0], "idx"))
	assert.Equal(t, "y", Get(out[1], "tags"))
	assert.EqualValues(t, 1, Get(out[1], "idx"))
	assert.Nil(t, Get(out[2], "idx"))
	assert.Nil(t, Get(out[3], "idx"))
}

func TestRunPipelineUnwindDropsEmptyWithoutPreserve(t *testing.T) {
	docs := []bson.D{
		{{Key: "_id", Value: "1"}, {Key: "tags", Value: bson.A{"x"}}},
		{{Key: "_id", Value: "2"}, {Key: "tags", Value: bson.A{}}},
	}
	out, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$unwind", Value: "$tags"}},
	}, docs, Env{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "x", Get(out[0], "tags"))
}

func TestRunPipelineLimitSkipCount(t *testing.T) {
	docs := []bson.D{
		{{Key: "value", Value: int64(10)}},
		{{Key: "value", Value: int64(20)}},
		{{Key: "value", Value: int64(30)}},
		{{Key: "value", Value: int64(40)}},
		{{Key: "value", Value: int64(50)}},
	}
	out, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$sort", Value: bson.D{{Key: "value", Value: -1}}}},
		{{Key: "$skip", Value: int64(1)}},
		{{Key: "$limit", Value: int64(2)}},
		{{Key: "$project", Value: bson.D{{Key: "value", Value: 1}, {Key: "_id", Value: 0}}}},
	}, docs, Env{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.EqualValues(t, 40, firstValueAgg(out[0], "value"))
	assert.EqualValues(t, 30, firstValueAgg(out[1], "value"))

	counted, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$count", Value: "total"}},
	}, docs, Env{})
	require.NoError(t, err)
	require.Len(t, counted, 1)
	assert.EqualValues(t, 5, firstValueAgg(counted[0], "total"))
}

func TestRunPipelineAddFieldsAndUnset(t *testing.T) {
	doc := bson.D{{Key: "a", Value: int64(2)}, {Key: "b", Value: int64(3)}}
	out, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$addFields", Value: bson.D{{Key: "sum", Value: bson.D{{Key: "$add", Value: bson.A{"$a", "$b"}}}}}}},
		{{Key: "$unset", Value: "b"}},
	}, []bson.D{doc}, Env{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.EqualValues(t, 5, Get(out[0], "sum"))
	assert.True(t, IsMissing(Get(out[0], "b")))
}

type fakeLookup struct {
	docs []bson.D
}

func (f *fakeLookup) Lookup(ctx context.Context, db, collection string, pipeline []bson.D) ([]bson.D, error) {
	return f.docs, nil
}

func TestRunPipelineLookupEqualityForm(t *testing.T) {
	order := bson.D{{Key: "_id", Value: "o1"}, {Key: "customerId", Value: "c1"}}
	env := Env{Lookup: &fakeLookup{docs: []bson.D{
		{{Key: "_id", Value: "c1"}, {Key: "name", Value: "Ada"}},
		{{Key: "_id", Value: "c2"}, {Key: "name", Value: "Bo"}},
	}}}
	out, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "customers"},
			{Key: "localField", Value: "customerId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "customer"},
		}}},
	}, []bson.D{order}, env)
	require.NoError(t, err)
	require.Len(t, out, 1)
	matched, ok := Get(out[0], "customer").(bson.A)
	require.True(t, ok)
	require.Len(t, matched, 1)
	assert.Equal(t, "Ada", firstValueAgg(matched[0].(bson.D), "name"))
}

func TestRunPipelineLookupSubPipelineForm(t *testing.T) {
	order := bson.D{{Key: "_id", Value: "o1"}, {Key: "customerId", Value: "c1"}}
	env := Env{Lookup: &fakeLookup{docs: []bson.D{
		{{Key: "_id", Value: "c1"}, {Key: "name", Value: "Ada"}},
	}}}
	out, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "customers"},
			{Key: "let", Value: bson.D{{Key: "cid", Value: "$customerId"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{}}},
			}},
			{Key: "as", Value: "customer"},
		}}},
	}, []bson.D{order}, env)
	require.NoError(t, err)
	require.Len(t, out, 1)
	matched, ok := Get(out[0], "customer").(bson.A)
	require.True(t, ok)
	require.Len(t, matched, 1)
}

func TestRunPipelineVectorSearchRequiresBinding(t *testing.T) {
	_, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$vectorSearch", Value: bson.D{{Key: "queryVector", Value: bson.A{1, 2, 3}}}}},
	}, []bson.D{{{Key: "a", Value: 1}}}, Env{})
	require.Error(t, err)
	assert.Equal(t, KindInvalidOperation, KindOf(err))
}

func TestRunPipelineUnknownStageIsPassthrough(t *testing.T) {
	doc := bson.D{{Key: "a", Value: int64(1)}}
	out, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$facet", Value: bson.D{}}},
	}, []bson.D{doc}, Env{})
	require.NoError(t, err)
	assert.Equal(t, []bson.D{doc}, out)
}

func TestRunPipelineRejectsMultiKeyStage(t *testing.T) {
	_, err := RunPipeline(context.Background(), []bson.D{
		{{Key: "$match", Value: bson.D{}}, {Key: "$sort", Value: bson.D{}}},
	}, []bson.D{{{Key: "a", Value: 1}}}, Env{})
	require.Error(t, err)
}

func TestPipelineRunMethod(t *testing.T) {
	p := NewPipeline().Match(Gt("age", int64(30)))
	out, err := p.Run(context.Background(), []bson.D{
		{{Key: "age", Value: int64(20)}},
		{{Key: "age", Value: int64(40)}},
	}, Env{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.EqualValues(t, 40, firstValueAgg(out[0], "age"))
}
