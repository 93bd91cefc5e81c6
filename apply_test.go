package gmqb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestApplyRename(t *testing.T) {
	doc := bson.D{{Key: "old", Value: "v"}}
	out, changed, err := Apply(bson.D{{Key: "$rename", Value: bson.D{{Key: "old", Value: "new"}}}}, doc, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, IsMissing(Get(out, "old")))
	assert.Equal(t, "v", Get(out, "new"))
}

func TestApplyInc(t *testing.T) {
	doc := bson.D{{Key: "n", Value: int64(5)}}
	out, changed, err := Apply(bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: int64(3)}}}}, doc, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 8, Get(out, "n"))
}

func TestApplyMul(t *testing.T) {
	doc := bson.D{{Key: "n", Value: int64(4)}}
	out, changed, err := Apply(bson.D{{Key: "$mul", Value: bson.D{{Key: "n", Value: int64(3)}}}}, doc, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 12, Get(out, "n"))

	missing := bson.D{}
	out, changed, err = Apply(bson.D{{Key: "$mul", Value: bson.D{{Key: "absent", Value: int64(5)}}}}, missing, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 0, Get(out, "absent"))
}

func TestApplyMinMax(t *testing.T) {
	doc := bson.D{{Key: "n", Value: int64(10)}}
	out, _, err := Apply(bson.D{{Key: "$min", Value: bson.D{{Key: "n", Value: int64(5)}}}}, doc, false)
	require.NoError(t, err)
	assert.EqualValues(t, 5, Get(out, "n"))

	out, _, err = Apply(bson.D{{Key: "$min", Value: bson.D{{Key: "n", Value: int64(20)}}}}, out, false)
	require.NoError(t, err)
	assert.EqualValues(t, 5, Get(out, "n"))

	out, _, err = Apply(bson.D{{Key: "$max", Value: bson.D{{Key: "n", Value: int64(20)}}}}, out, false)
	require.NoError(t, err)
	assert.EqualValues(t, 20, Get(out, "n"))
}

func TestApplyCurrentDate(t *testing.T) {
	doc := bson.D{}
	out, changed, err := Apply(bson.D{{Key: "$currentDate", Value: bson.D{{Key: "updatedAt", Value: true}}}}, doc, false)
	require.NoError(t, err)
	assert.True(t, changed)
	v := Get(out, "updatedAt")
	tm, ok := v.(time.Time)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().UTC(), tm, 5*time.Second)

	out, _, err = Apply(bson.D{{Key: "$currentDate", Value: bson.D{
		{Key: "ts", Value: bson.D{{Key: "$type", Value: "timestamp"}}},
	}}}, doc, false)
	require.NoError(t, err)
	_, ok = Get(out, "ts").(bson.Timestamp)
	assert.True(t, ok)
}

func TestApplyAddToSet(t *testing.T) {
	doc := bson.D{{Key: "tags", Value: bson.A{"a", "b"}}}
	out, changed, err := Apply(bson.D{{Key: "$addToSet", Value: bson.D{{Key: "tags", Value: "b"}}}}, doc, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, bson.A{"a", "b"}, Get(out, "tags"))

	out, changed, err = Apply(bson.D{{Key: "$addToSet", Value: bson.D{{Key: "tags", Value: "c"}}}}, doc, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, bson.A{"a", "b", "c"}, Get(out, "tags"))
}

func TestApplyPop(t *testing.T) {
	doc := bson.D{{Key: "tags", Value: bson.A{"a", "b", "c"}}}
	out, changed, err := Apply(bson.D{{Key: "$pop", Value: bson.D{{Key: "tags", Value: 1}}}}, doc, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, bson.A{"a", "b"}, Get(out, "tags"))

	out, changed, err = Apply(bson.D{{Key: "$pop", Value: bson.D{{Key: "tags", Value: -1}}}}, doc, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, bson.A{"b", "c"}, Get(out, "tags"))
}

func TestApplyPullWithOperator(t *testing.T) {
	doc := bson.D{{Key: "scores", Value: bson.A{10, 20, 30, 40}}}
	out, changed, err := Apply(bson.D{{Key: "$pull", Value: bson.D{
		{Key: "scores", Value: bson.D{{Key: "$gt", Value: 25}}},
	}}}, doc, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, bson.A{10, 20}, Get(out, "scores"))
}

func TestApplyPullAll(t *testing.T) {
	doc := bson.D{{Key: "tags", Value: bson.A{"a", "b", "c", "b"}}}
	out, changed, err := Apply(bson.D{{Key: "$pullAll", Value: bson.D{{Key: "tags", Value: bson.A{"b"}}}}}, doc, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, bson.A{"a", "c"}, Get(out, "tags"))
}

func TestApplyPushEachSlicesAndSorts(t *testing.T) {
	doc := bson.D{{Key: "tags", Value: bson.A{"c", "a"}}}
	out, changed, err := Apply(bson.D{{Key: "$push", Value: bson.D{
		{Key: "tags", Value: bson.D{{Key: "$each", Value: bson.A{"b"}}, {Key: "$sort", Value: 1}}},
	}}}, doc, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, bson.A{"a", "b", "c"}, Get(out, "tags"))

	doc2 := bson.D{{Key: "tags", Value: bson.A{"a", "b"}}}
	out2, changed2, err := Apply(bson.D{{Key: "$push", Value: bson.D{
		{Key: "tags", Value: bson.D{{Key: "$each", Value: bson.A{"c", "d"}}, {Key: "$slice", Value: -3}}},
	}}}, doc2, false)
	require.NoError(t, err)
	assert.True(t, changed2)
	assert.Equal(t, bson.A{"b", "c", "d"}, Get(out2, "tags"))
}

func TestApplyPushPosition(t *testing.T) {
	doc := bson.D{{Key: "tags", Value: bson.A{"a", "d"}}}
	out, _, err := Apply(bson.D{{Key: "$push", Value: bson.D{
		{Key: "tags", Value: bson.D{{Key: "$each", Value: bson.A{"b", "c"}}, {Key: "$position", Value: 1}}},
	}}}, doc, false)
	require.NoError(t, err)
	assert.Equal(t, bson.A{"a", "b", "c", "d"}, Get(out, "tags"))
}

func TestApplyBit(t *testing.T) {
	doc := bson.D{{Key: "flags", Value: int64(5)}}
	out, changed, err := Apply(bson.D{{Key: "$bit", Value: bson.D{
		{Key: "flags", Value: bson.D{{Key: "or", Value: int64(2)}}},
	}}}, doc, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 7, Get(out, "flags"))

	out, _, err = Apply(bson.D{{Key: "$bit", Value: bson.D{
		{Key: "flags", Value: bson.D{{Key: "and", Value: int64(1)}}},
	}}}, out, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, Get(out, "flags"))
}

func TestApplyEmptyUpdateErrors(t *testing.T) {
	_, _, err := Apply(bson.D{}, bson.D{}, false)
	require.Error(t, err)
	assert.Equal(t, KindInvalidOperation, KindOf(err))
}

func TestApplySetOnInsertOnlyAppliesOnInsert(t *testing.T) {
	ops := bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: "now"}}}}
	out, changed, err := Apply(ops, bson.D{}, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, IsMissing(Get(out, "createdAt")))

	out, changed, err = Apply(ops, bson.D{}, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "now", Get(out, "createdAt"))
}

func TestApplyDeterminism(t *testing.T) {
	ops := bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: int64(1)}}}}
	doc := bson.D{{Key: "n", Value: int64(1)}}
	out1, _, err := Apply(ops, doc, false)
	require.NoError(t, err)
	out2, _, err := Apply(ops, doc, false)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
}

func TestUpdaterApplyMatchesFreeFunction(t *testing.T) {
	u := NewUpdate().Set("n", int64(1)).Inc("n", int64(1))
	doc := bson.D{{Key: "n", Value: int64(5)}}
	out, changed, err := u.Apply(doc, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 2, Get(out, "n"))
}

func TestApplyRefusesIDMutation(t *testing.T) {
	doc := bson.D{{Key: "_id", Value: "a"}, {Key: "n", Value: int64(1)}}

	_, _, err := Apply(bson.D{{Key: "$set", Value: bson.D{{Key: "_id", Value: "b"}}}}, doc, false)
	require.Error(t, err)
	assert.Equal(t, KindInvalidOperation, KindOf(err))

	_, _, err = Apply(bson.D{{Key: "$rename", Value: bson.D{{Key: "n", Value: "_id"}}}}, doc, false)
	require.Error(t, err)

	// $setOnInsert may seed _id, but only on an actual insert.
	out, _, err := Apply(bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "_id", Value: "c"}}}}, bson.D{}, true)
	require.NoError(t, err)
	assert.Equal(t, "c", Get(out, "_id"))
}
