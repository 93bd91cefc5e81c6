package oltp

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/squall-chua/mongofacade/backend"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	s, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func firstValue(doc bson.D, key string) interface{} {
	for _, e := range doc {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

func TestInsertAndFindRoundTrips(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.InsertOne(ctx, "db", "events", bson.D{{Key: "kind", Value: "click"}, {Key: "n", Value: int32(1)}})
	require.NoError(t, err)
	require.NotNil(t, id)

	res, err := s.Find(ctx, "db", "events", backend.FindOptions{Filter: bson.D{{Key: "kind", Value: "click"}}})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "click", firstValue(res.Documents[0], "kind"))
}

func TestDuplicateIDRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.InsertOne(ctx, "db", "c", bson.D{{Key: "_id", Value: "a"}})
	require.NoError(t, err)
	_, err = s.InsertOne(ctx, "db", "c", bson.D{{Key: "_id", Value: "a"}})
	assert.Error(t, err)
}

func TestInsertOneGeneratesIDWhenAbsent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id, err := s.InsertOne(ctx, "db", "c", bson.D{{Key: "a", Value: 1}})
	require.NoError(t, err)
	require.NotNil(t, id)

	res, err := s.Find(ctx, "db", "c", backend.FindOptions{})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, id, firstValue(res.Documents[0], "_id"))
}

func TestUpdateManyModifiesMatchingRows(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.InsertOne(ctx, "db", "c", bson.D{{Key: "active", Value: true}, {Key: "n", Value: i}})
		require.NoError(t, err)
	}
	res, err := s.UpdateMany(ctx, "db", "c",
		bson.D{{Key: "active", Value: true}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "active", Value: false}}}},
		false)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.MatchedCount)
	assert.EqualValues(t, 3, res.ModifiedCount)

	n, err := s.Count(ctx, "db", "c", bson.D{{Key: "active", Value: true}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertInsertsWhenNothingMatches(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	res, err := s.UpdateOne(ctx, "db", "c",
		bson.D{{Key: "sku", Value: "abc"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "qty", Value: 5}}}},
		true)
	require.NoError(t, err)
	require.NotNil(t, res.UpsertedID)

	n, err := s.Count(ctx, "db", "c", bson.D{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	found, err := s.Find(ctx, "db", "c", backend.FindOptions{Filter: bson.D{{Key: "sku", Value: "abc"}}})
	require.NoError(t, err)
	require.Len(t, found.Documents, 1)
	assert.EqualValues(t, 5, firstValue(found.Documents[0], "qty"))
}

func TestDeleteOneRemovesRow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.InsertOne(ctx, "db", "c", bson.D{{Key: "_id", Value: "a"}})
	require.NoError(t, err)
	_, err = s.InsertOne(ctx, "db", "c", bson.D{{Key: "_id", Value: "b"}})
	require.NoError(t, err)

	n, err := s.DeleteOne(ctx, "db", "c", bson.D{{Key: "_id", Value: "a"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	remaining, err := s.Find(ctx, "db", "c", backend.FindOptions{})
	require.NoError(t, err)
	require.Len(t, remaining.Documents, 1)
	assert.Equal(t, "b", firstValue(remaining.Documents[0], "_id"))

	count, err := s.Count(ctx, "db", "c", bson.D{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestDistinctDedupesValues(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.InsertOne(ctx, "db", "c", bson.D{{Key: "color", Value: "red"}})
	require.NoError(t, err)
	_, err = s.InsertOne(ctx, "db", "c", bson.D{{Key: "color", Value: "blue"}})
	require.NoError(t, err)
	_, err = s.InsertOne(ctx, "db", "c", bson.D{{Key: "color", Value: "red"}})
	require.NoError(t, err)

	vals, err := s.Distinct(ctx, "db", "c", "color", bson.D{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{"red", "blue"}, vals)
}

func TestAggregateRunsPipelineOverStoredRows(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.InsertOne(ctx, "db", "c", bson.D{{Key: "cat", Value: "a"}})
	require.NoError(t, err)
	_, err = s.InsertOne(ctx, "db", "c", bson.D{{Key: "cat", Value: "a"}})
	require.NoError(t, err)
	_, err = s.InsertOne(ctx, "db", "c", bson.D{{Key: "cat", Value: "b"}})
	require.NoError(t, err)

	docs, err := s.Aggregate(ctx, "db", "c", []bson.D{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$cat"},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestCreateCursorAndAdvance(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.InsertOne(ctx, "db", "c", bson.D{{Key: "n", Value: i}})
		require.NoError(t, err)
	}
	id, err := s.CreateCursor(ctx, "db", "c", backend.FindOptions{Sort: bson.D{{Key: "n", Value: 1}}})
	require.NoError(t, err)

	res, err := s.AdvanceCursor(ctx, id, 2)
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.True(t, res.HasMore)
	assert.EqualValues(t, 0, firstValue(res.Documents[0], "n"))

	require.NoError(t, s.CloseCursor(ctx, id))
}

func TestCreateIndexesListAndDrop(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	names, err := s.CreateIndexes(ctx, "db", "c", []backend.IndexSpec{
		{Keys: bson.D{{Key: "sku", Value: 1}}, Unique: true},
	})
	require.NoError(t, err)
	require.Len(t, names, 1)

	specs, err := s.ListIndexes(ctx, "db", "c")
	require.NoError(t, err)
	require.Len(t, specs, 1)

	require.NoError(t, s.DropIndex(ctx, "db", "c", names[0]))
	specs, err = s.ListIndexes(ctx, "db", "c")
	require.NoError(t, err)
	assert.Empty(t, specs)
}
