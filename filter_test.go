package gmqb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// assertFilterJSON compares a filter's wire shape against expected JSON,
// normalizing key ordering.
func assertFilterJSON(t *testing.T, f Filter, expected string) {
	t.Helper()
	got := f.CompactJSON()
	var gotMap, expectedMap interface{}
	require.NoError(t, json.Unmarshal([]byte(got), &gotMap), "invalid JSON from filter: %s", got)
	require.NoError(t, json.Unmarshal([]byte(expected), &expectedMap), "invalid expected JSON: %s", expected)
	gotBytes, _ := json.Marshal(gotMap)
	expectedBytes, _ := json.Marshal(expectedMap)
	assert.JSONEq(t, string(expectedBytes), string(gotBytes))
}

// Each evaluated operator is checked on both sides of the divide: the wire
// shape the builder emits, and the match outcome the evaluator produces
// for a document that should pass and one that should not.
func TestBuiltFiltersMatchAndSerialize(t *testing.T) {
	cases := []struct {
		name    string
		f       Filter
		json    string
		match   bson.D
		noMatch bson.D
	}{
		{"eq", Eq("name", "Alice"), `{"name":{"$eq":"Alice"}}`,
			bson.D{{Key: "name", Value: "Alice"}}, bson.D{{Key: "name", Value: "Bob"}}},
		{"ne", Ne("status", "archived"), `{"status":{"$ne":"archived"}}`,
			bson.D{{Key: "status", Value: "active"}}, bson.D{{Key: "status", Value: "archived"}}},
		{"gt", Gt("age", 18), `{"age":{"$gt":18}}`,
			bson.D{{Key: "age", Value: 21}}, bson.D{{Key: "age", Value: 18}}},
		{"gte", Gte("age", 18), `{"age":{"$gte":18}}`,
			bson.D{{Key: "age", Value: 18}}, bson.D{{Key: "age", Value: 17}}},
		{"lt", Lt("price", 100), `{"price":{"$lt":100}}`,
			bson.D{{Key: "price", Value: 99}}, bson.D{{Key: "price", Value: 100}}},
		{"lte", Lte("qty", 50), `{"qty":{"$lte":50}}`,
			bson.D{{Key: "qty", Value: 50}}, bson.D{{Key: "qty", Value: 51}}},
		{"in", In("status", "active", "pending"), `{"status":{"$in":["active","pending"]}}`,
			bson.D{{Key: "status", Value: "pending"}}, bson.D{{Key: "status", Value: "closed"}}},
		{"nin", Nin("role", "banned", "suspended"), `{"role":{"$nin":["banned","suspended"]}}`,
			bson.D{{Key: "role", Value: "member"}}, bson.D{{Key: "role", Value: "banned"}}},
		{"exists", Exists("email", true), `{"email":{"$exists":true}}`,
			bson.D{{Key: "email", Value: nil}}, bson.D{{Key: "other", Value: 1}}},
		{"all", All("tags", "ssl", "security"), `{"tags":{"$all":["ssl","security"]}}`,
			bson.D{{Key: "tags", Value: bson.A{"ssl", "tls", "security"}}},
			bson.D{{Key: "tags", Value: bson.A{"ssl"}}}},
		{"size", Size("tags", 3), `{"tags":{"$size":3}}`,
			bson.D{{Key: "tags", Value: bson.A{1, 2, 3}}},
			bson.D{{Key: "tags", Value: bson.A{1, 2}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assertFilterJSON(t, tc.f, tc.json)
			assert.True(t, tc.f.Matches(tc.match), "expected match")
			assert.False(t, tc.f.Matches(tc.noMatch), "expected no match")
		})
	}
}

func TestLogicalCombinatorsMatch(t *testing.T) {
	and := And(Gte("age", 18), Lt("age", 65))
	assertFilterJSON(t, and, `{"$and":[{"age":{"$gte":18}},{"age":{"$lt":65}}]}`)
	assert.True(t, and.Matches(bson.D{{Key: "age", Value: 30}}))
	assert.False(t, and.Matches(bson.D{{Key: "age", Value: 70}}))

	or := Or(Eq("status", "active"), Eq("status", "pending"))
	assertFilterJSON(t, or, `{"$or":[{"status":{"$eq":"active"}},{"status":{"$eq":"pending"}}]}`)
	assert.True(t, or.Matches(bson.D{{Key: "status", Value: "pending"}}))
	assert.False(t, or.Matches(bson.D{{Key: "status", Value: "closed"}}))

	nor := Nor(Eq("status", "archived"))
	assertFilterJSON(t, nor, `{"$nor":[{"status":{"$eq":"archived"}}]}`)
	assert.True(t, nor.Matches(bson.D{{Key: "status", Value: "open"}}))
	assert.False(t, nor.Matches(bson.D{{Key: "status", Value: "archived"}}))
}

func TestNotInvertsInnerOperator(t *testing.T) {
	f := Not("age", Gte("age", 18))
	assertFilterJSON(t, f, `{"age":{"$not":{"$gte":18}}}`)
	assert.True(t, f.Matches(bson.D{{Key: "age", Value: 12}}))
	assert.False(t, f.Matches(bson.D{{Key: "age", Value: 30}}))
}

func TestNotWrapsForeignFieldFilterWhole(t *testing.T) {
	f := Not("status", Eq("other", "value"))
	d := f.BsonD()
	assert.Equal(t, "status", d[0].Key)
	assert.Equal(t, "$not", d[0].Value.(bson.D)[0].Key)
}

func TestRegexBuildsOptionsOnlyWhenGiven(t *testing.T) {
	f := Regex("email", `^test`, "i")
	got := f.CompactJSON()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(got), &m))
	emailVal := m["email"].(map[string]interface{})
	assert.Equal(t, "^test", emailVal["$regex"])
	assert.Equal(t, "i", emailVal["$options"])

	assert.True(t, f.Matches(bson.D{{Key: "email", Value: "Test@x.io"}}))
	assert.False(t, f.Matches(bson.D{{Key: "email", Value: "x@test.io"}}))

	bare := Regex("name", "^A", "")
	got = bare.CompactJSON()
	m = nil
	require.NoError(t, json.Unmarshal([]byte(got), &m))
	assert.NotContains(t, m["name"].(map[string]interface{}), "$options")
}

func TestElemMatchBuiltFilterMatches(t *testing.T) {
	f := ElemMatch("results", And(Gte("score", 80), Lt("score", 100)))
	doc := bson.D{{Key: "results", Value: bson.A{
		bson.D{{Key: "score", Value: 70}},
		bson.D{{Key: "score", Value: 85}},
	}}}
	assert.True(t, f.Matches(doc))
	assert.False(t, f.Matches(bson.D{{Key: "results", Value: bson.A{
		bson.D{{Key: "score", Value: 70}},
	}}}))
}

// Wire-compatibility operators: only the built shape is asserted, since
// the matcher deliberately treats them permissively.

func TestWireOnlyOperatorShapes(t *testing.T) {
	assertFilterJSON(t, Type("age", "int"), `{"age":{"$type":"int"}}`)
	assertFilterJSON(t, Mod("qty", 4, 0), `{"qty":{"$mod":[4,0]}}`)
	assertFilterJSON(t, Where("this.a > this.b"), `{"$where":"this.a > this.b"}`)
	assertFilterJSON(t, BitsAllClear("flags", 35), `{"flags":{"$bitsAllClear":35}}`)
	assertFilterJSON(t, BitsAllSet("flags", 50), `{"flags":{"$bitsAllSet":50}}`)

	assert.Equal(t, "$jsonSchema", JsonSchema(bson.D{{Key: "type", Value: "object"}}).BsonD()[0].Key)
	assert.NotEqual(t, "{}", Expr(ExprGt("$spent", "$budget")).CompactJSON())
}

func TestWireOnlyOperatorsNeverExcludeDocuments(t *testing.T) {
	doc := bson.D{{Key: "qty", Value: 7}, {Key: "flags", Value: 3}}
	assert.True(t, Mod("qty", 4, 0).Matches(doc))
	assert.True(t, Type("qty", "string").Matches(doc))
	assert.True(t, BitsAllSet("flags", 50).Matches(doc))
}

func TestGeospatialShapes(t *testing.T) {
	geo := Point(-73.9667, 40.78)
	assert.False(t, GeoIntersects("location", geo).IsEmpty())
	assert.False(t, Near("location", geo, 1000, 0).IsEmpty())

	within := GeoWithin("location", Polygon([][2]float64{{0, 0}, {3, 6}, {6, 1}, {0, 0}}))
	assert.Equal(t, "$geoWithin", within.BsonD()[0].Value.(bson.D)[0].Key)

	near := Near("location", Point(10, 20), 1000, 100)
	opts := near.BsonD()[0].Value.(bson.D)[0].Value.(bson.D)
	assert.Equal(t, "$minDistance", opts[2].Key)
	assert.Equal(t, float64(100), opts[2].Value)

	sphere := NearSphere("location", Point(10, 20), 1000, 100)
	assert.Equal(t, "$nearSphere", sphere.BsonD()[0].Value.(bson.D)[0].Key)
}

func TestBitPositionListShapes(t *testing.T) {
	anyClear := BitsAnyClear("permissions", 4)
	assert.Equal(t, "$bitsAnyClear", anyClear.BsonD()[0].Value.(bson.D)[0].Key)

	anySet := BitsAnySet("permissions", []int{1, 5})
	assert.Equal(t, "$bitsAnySet", anySet.BsonD()[0].Value.(bson.D)[0].Key)
}

// --- Output methods and chaining ---

func TestFilterOutputForms(t *testing.T) {
	assert.Contains(t, Eq("name", "Alice").BsonM(), "name")
	assert.NotEqual(t, "{}", Eq("name", "test").JSON())
	assert.True(t, Filter{}.IsEmpty())
	assert.False(t, Eq("a", 1).IsEmpty())
	assert.False(t, Raw(bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: "coffee"}}}}).IsEmpty())
}

func TestFilterChaining(t *testing.T) {
	assert.True(t, NewFilter().IsEmpty())

	assertFilterJSON(t, NewFilter().Eq("name", "Alice"), `{"name":{"$eq":"Alice"}}`)

	f := NewFilter().
		Eq("status", "active").
		Gte("age", 18).
		Lt("age", 65)
	d := f.BsonD()
	require.Len(t, d, 3)
	assert.Equal(t, "status", d[0].Key)
	assert.Equal(t, "age", d[1].Key)
	assert.Equal(t, "age", d[2].Key)

	// A chained filter matches like its explicit And.
	assert.True(t, f.Matches(bson.D{{Key: "status", Value: "active"}, {Key: "age", Value: 30}}))
	assert.False(t, f.Matches(bson.D{{Key: "status", Value: "active"}, {Key: "age", Value: 70}}))
}

func TestFilterChainCoversEveryOperator(t *testing.T) {
	f := NewFilter().
		Ne("status", "archived").
		Gt("score", 50).
		Lte("price", 100).
		In("country", "US", "UK").
		Nin("role", "banned").
		Exists("email", true).
		Type("age", "int").
		Size("tags", 2).
		Regex("name", "^A", "i")
	assert.Len(t, f.BsonD(), 9)
}

func TestFilterChainingIsImmutable(t *testing.T) {
	f1 := NewFilter().Eq("a", 1)
	f2 := f1.Eq("b", 2)
	assert.Len(t, f1.BsonD(), 1, "original must be unchanged")
	assert.Len(t, f2.BsonD(), 2)
}
