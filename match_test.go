package gmqb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func findAges(t *testing.T, filter bson.D) []int {
	t.Helper()
	docs := []bson.D{
		{{Key: "age", Value: 25}},
		{{Key: "age", Value: 30}},
		{{Key: "age", Value: 35}},
		{{Key: "age", Value: 40}},
		{{Key: "age", Value: 28}},
	}
	var ages []int
	for _, d := range docs {
		if Matches(filter, d) {
			ages = append(ages, firstIntValue(d, "age"))
		}
	}
	return ages
}

func firstIntValue(d bson.D, key string) int {
	for _, e := range d {
		if e.Key == key {
			n, _ := asFloat(e.Value)
			return int(n)
		}
	}
	return 0
}

func TestMatchesComparisonAndLogical(t *testing.T) {
	gt30 := findAges(t, bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 30}}}})
	assert.ElementsMatch(t, []int{35, 40}, gt30)

	or := findAges(t, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "age", Value: bson.D{{Key: "$lt", Value: 26}}}},
		bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 38}}}},
	}}})
	assert.ElementsMatch(t, []int{25, 40}, or)
}

func TestMatchesEmptyFilterAlwaysTrue(t *testing.T) {
	assert.True(t, Matches(bson.D{}, bson.D{{Key: "anything", Value: 1}}))
	assert.True(t, Matches(bson.D{}, bson.D{}))
}

func TestMatchesRegexWithOptions(t *testing.T) {
	doc := bson.D{{Key: "name", Value: "Alice"}}
	assert.True(t, Matches(bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "^alice$"}, {Key: "$options", Value: "i"}}}}, doc))
	assert.False(t, Matches(bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "^alice$"}}}}, doc))

	assert.False(t, Matches(bson.D{{Key: "age", Value: bson.D{{Key: "$regex", Value: "^1$"}}}}, bson.D{{Key: "age", Value: 1}}))
}

func TestMatchesRegexBroadcastsOverArrayElements(t *testing.T) {
	doc := bson.D{{Key: "tags", Value: bson.A{"apple", "banana"}}}
	assert.True(t, Matches(bson.D{{Key: "tags", Value: bson.D{{Key: "$regex", Value: "^a"}}}}, doc))
	assert.False(t, Matches(bson.D{{Key: "tags", Value: bson.D{{Key: "$regex", Value: "^z"}}}}, doc))

	// The $options sibling applies to the broadcast elements too.
	assert.True(t, Matches(bson.D{{Key: "tags", Value: bson.D{
		{Key: "$regex", Value: "^BAN"}, {Key: "$options", Value: "i"},
	}}}, doc))

	// Non-string elements are skipped, not a mismatch for the whole array.
	mixed := bson.D{{Key: "tags", Value: bson.A{7, "apple"}}}
	assert.True(t, Matches(bson.D{{Key: "tags", Value: bson.D{{Key: "$regex", Value: "^a"}}}}, mixed))
}

func TestMatchesNot(t *testing.T) {
	doc := bson.D{{Key: "age", Value: 30}}
	assert.True(t, Matches(bson.D{{Key: "age", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$gt", Value: 40}}}}}}, doc))
	assert.False(t, Matches(bson.D{{Key: "age", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$gt", Value: 20}}}}}}, doc))
	assert.False(t, Matches(bson.D{{Key: "age", Value: bson.D{{Key: "$not", Value: 30}}}}, doc))
}

func TestMatchesElemMatch(t *testing.T) {
	doc := bson.D{{Key: "scores", Value: bson.A{
		bson.D{{Key: "score", Value: 80}, {Key: "subject", Value: "math"}},
		bson.D{{Key: "score", Value: 60}, {Key: "subject", Value: "art"}},
	}}}
	assert.True(t, Matches(bson.D{{Key: "scores", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
		{Key: "subject", Value: "math"}, {Key: "score", Value: bson.D{{Key: "$gt", Value: 70}}},
	}}}}}, doc))
	assert.False(t, Matches(bson.D{{Key: "scores", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
		{Key: "subject", Value: "music"},
	}}}}}, doc))

	flat := bson.D{{Key: "nums", Value: bson.A{1, 5, 9}}}
	assert.True(t, Matches(bson.D{{Key: "nums", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$gt", Value: 8}}}}}}, flat))
}

func TestMatchesAllAndSize(t *testing.T) {
	doc := bson.D{{Key: "tags", Value: bson.A{"a", "b", "c"}}}
	assert.True(t, Matches(bson.D{{Key: "tags", Value: bson.D{{Key: "$all", Value: bson.A{"a", "c"}}}}}, doc))
	assert.False(t, Matches(bson.D{{Key: "tags", Value: bson.D{{Key: "$all", Value: bson.A{"a", "z"}}}}}, doc))

	assert.True(t, Matches(bson.D{{Key: "tags", Value: bson.D{{Key: "$size", Value: 3}}}}, doc))
	assert.False(t, Matches(bson.D{{Key: "tags", Value: bson.D{{Key: "$size", Value: 2}}}}, doc))
	assert.False(t, Matches(bson.D{{Key: "tags", Value: bson.D{{Key: "$size", Value: 1}}}}, bson.D{{Key: "tags", Value: "not-a-sequence"}}))
}

func TestMatchesArrayBroadcast(t *testing.T) {
	doc := bson.D{{Key: "scores", Value: bson.A{10, 20, 30}}}
	assert.True(t, Matches(bson.D{{Key: "scores", Value: 20}}, doc))
	assert.True(t, Matches(bson.D{{Key: "scores", Value: bson.D{{Key: "$gt", Value: 25}}}}, doc))
	assert.False(t, Matches(bson.D{{Key: "scores", Value: bson.D{{Key: "$gt", Value: 100}}}}, doc))

	words := bson.D{{Key: "words", Value: bson.A{"alpha", "beta"}}}
	assert.True(t, Matches(bson.D{{Key: "words", Value: bson.D{{Key: "$regex", Value: "ta$"}}}}, words))
	assert.False(t, Matches(bson.D{{Key: "words", Value: bson.D{{Key: "$regex", Value: "^gamma"}}}}, words))
}

func TestMatchesAndOrNorNesting(t *testing.T) {
	doc := bson.D{{Key: "age", Value: 30}, {Key: "active", Value: true}}

	assert.True(t, Matches(bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 18}}}},
		bson.D{{Key: "active", Value: true}},
	}}}, doc))
	assert.False(t, Matches(bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 18}}}},
		bson.D{{Key: "active", Value: false}},
	}}}, doc))

	assert.True(t, Matches(bson.D{{Key: "$nor", Value: bson.A{
		bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 100}}}},
		bson.D{{Key: "active", Value: false}},
	}}}, doc))
	assert.False(t, Matches(bson.D{{Key: "$nor", Value: bson.A{
		bson.D{{Key: "active", Value: true}},
	}}}, doc))
}

func TestFilterMatchesMethod(t *testing.T) {
	f := Gt("age", 30)
	assert.True(t, f.Matches(bson.D{{Key: "age", Value: 35}}))
	assert.False(t, f.Matches(bson.D{{Key: "age", Value: 20}}))
}
