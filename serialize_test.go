package gmqb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestToJSONIndentsAndPreservesValues(t *testing.T) {
	d := bson.D{{Key: "name", Value: "Alice"}, {Key: "age", Value: 30}}
	got := toJSON(d)
	assert.Contains(t, got, `"name": "Alice"`)
	assert.Contains(t, got, `"age": 30`)

	assert.Equal(t, "{}", toJSON(bson.D{}))
}

func TestToCompactJSONStaysSingleLine(t *testing.T) {
	got := toCompactJSON(bson.D{{Key: "name", Value: "Alice"}})
	assert.Contains(t, got, `"name":"Alice"`)
	assert.NotContains(t, got, "\n")
}

func TestPipelineJSONRenderers(t *testing.T) {
	stages := []bson.D{
		{{Key: "$match", Value: bson.D{{Key: "age", Value: 30}}}},
	}
	assert.Contains(t, pipelineToJSON(stages), "$match")

	compact := pipelineToCompactJSON(stages)
	assert.Contains(t, compact, "$match")
	assert.NotContains(t, compact, "\n")
}

// The exported forms are what the router's cache keys ride on: the same
// logical document must always render to the same string.
func TestCompactJSONOfIsDeterministic(t *testing.T) {
	d := bson.D{{Key: "b", Value: 2}, {Key: "a", Value: 1}}
	assert.Equal(t, CompactJSONOf(d), CompactJSONOf(d))

	stages := []bson.D{{{Key: "$limit", Value: 3}}}
	assert.Equal(t, PipelineCompactJSONOf(stages), PipelineCompactJSONOf(stages))
}
