package gmqb

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Pipeline is an immutable aggregation pipeline. Each stage method appends
// one stage and returns a new Pipeline, leaving the receiver untouched.
//
// The interpreter (Run / RunPipeline) executes the core stages ($match,
// $project, $addFields/$set, $unset, $sort, $limit, $skip, $count,
// $unwind, $group, $lookup, $vectorSearch) and passes every other stage
// through unchanged; those remain buildable for wire compatibility.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation-pipeline/
//
// Example:
//
//	p := gmqb.NewPipeline().
//	    Match(gmqb.Eq("status", "active")).
//	    Group(gmqb.GroupSpec("$country", gmqb.GroupAcc("count", gmqb.AccSum(1)))).
//	    Sort(gmqb.Desc("count")).
//	    Limit(10)
//	out, err := p.Run(ctx, docs, env)
type Pipeline struct {
	stages []bson.D
}

// NewPipeline returns an empty pipeline; running it yields its input
// unchanged.
func NewPipeline() Pipeline {
	return Pipeline{}
}

// BsonD returns the stage list as a []bson.D, the shape an aggregate
// command's "pipeline" argument carries on the wire.
func (p Pipeline) BsonD() []bson.D {
	return p.stages
}

// JSON renders the pipeline as an indented extended-JSON array.
func (p Pipeline) JSON() string {
	return pipelineToJSON(p.stages)
}

// CompactJSON renders the pipeline as a single-line extended-JSON array.
func (p Pipeline) CompactJSON() string {
	return pipelineToCompactJSON(p.stages)
}

// IsEmpty reports whether the pipeline has no stages.
func (p Pipeline) IsEmpty() bool {
	return len(p.stages) == 0
}

// addStage appends one single-key stage document.
func (p Pipeline) addStage(name string, value interface{}) Pipeline {
	newStages := make([]bson.D, len(p.stages), len(p.stages)+1)
	copy(newStages, p.stages)
	newStages = append(newStages, bson.D{{Key: name, Value: value}})
	return Pipeline{stages: newStages}
}

// --- Core Stages ---

// Match keeps only the documents the filter accepts, using the same
// matcher semantics as a find.
//
// MongoDB equivalent:
//
//	{ $match: { <query> } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/match/
func (p Pipeline) Match(filter Filter) Pipeline {
	return p.addStage(stMatch, filter.d)
}

// MatchRaw is Match for a hand-built bson.D predicate.
func (p Pipeline) MatchRaw(filter bson.D) Pipeline {
	return p.addStage(stMatch, filter)
}

// Project reshapes each document. Spec values of 1 include, 0 exclude, and
// anything else is evaluated as an expression into a computed field; the
// presence of any 1 selects include mode, where _id stays unless
// explicitly excluded.
//
// MongoDB equivalent:
//
//	{ $project: { field1: 1, field2: 0, computed: <expression> } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/project/
//
// Example:
//
//	p := gmqb.NewPipeline().Project(gmqb.AddFieldsSpec(
//	    gmqb.AddField("name", 1),
//	    gmqb.AddField("_id", 0),
//	))
func (p Pipeline) Project(spec bson.D) Pipeline {
	return p.addStage(stProject, spec)
}

// Group partitions the stream by the _id expression's value and reduces
// each partition with the accumulators. Groups emit in first-seen order.
//
// MongoDB equivalent:
//
//	{ $group: { _id: <expression>, <field1>: { <accumulator1>: <expr1> }, ... } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/group/
//
// Example:
//
//	p := gmqb.NewPipeline().Group(gmqb.GroupSpec("$country",
//	    gmqb.GroupAcc("total", gmqb.AccSum(1)),
//	    gmqb.GroupAcc("avgAge", gmqb.AccAvg("$age")),
//	))
func (p Pipeline) Group(spec bson.D) Pipeline {
	return p.addStage(stGroup, spec)
}

// GroupAcc pairs an output field with its accumulator expression, for
// GroupSpec.
func GroupAcc(field string, expr interface{}) bson.E {
	return bson.E{Key: field, Value: expr}
}

// GroupID builds a compound _id expression from field names, mapping each
// to its "$field" reference.
//
// Example:
//
//	gmqb.GroupID("country", "city") // { country: "$country", city: "$city" }
func GroupID(fields ...string) bson.D {
	d := make(bson.D, len(fields))
	for i, f := range fields {
		d[i] = bson.E{Key: f, Value: "$" + f}
	}
	return d
}

// GroupSpec assembles a $group stage argument: the _id expression (a
// "$field" string, a bson.D compound key, or GroupID's output) followed by
// GroupAcc pairs.
func GroupSpec(id interface{}, accumulators ...bson.E) bson.D {
	d := make(bson.D, len(accumulators)+1)
	d[0] = bson.E{Key: "_id", Value: id}
	for i, acc := range accumulators {
		d[i+1] = acc
	}
	return d
}

// Sort orders the stream by the spec's keys, first key primary; 1
// ascending, -1 descending. The interpreter's sort is stable: ties keep
// their incoming order.
//
// MongoDB equivalent:
//
//	{ $sort: { field1: 1, field2: -1 } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/sort/
func (p Pipeline) Sort(spec bson.D) Pipeline {
	return p.addStage(opSort, spec)
}

// Asc builds an all-ascending sort spec.
func Asc(fields ...string) bson.D {
	d := make(bson.D, len(fields))
	for i, f := range fields {
		d[i] = bson.E{Key: f, Value: 1}
	}
	return d
}

// Desc builds an all-descending sort spec.
func Desc(fields ...string) bson.D {
	d := make(bson.D, len(fields))
	for i, f := range fields {
		d[i] = bson.E{Key: f, Value: -1}
	}
	return d
}

// Limit passes only the first n documents on; 0 yields an empty stream and
// a negative n fails the run.
//
// MongoDB equivalent:
//
//	{ $limit: n }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/limit/
func (p Pipeline) Limit(n int64) Pipeline {
	return p.addStage(stLimit, n)
}

// Skip drops the first n documents.
//
// MongoDB equivalent:
//
//	{ $skip: n }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/skip/
//
// Example:
//
//	p := gmqb.NewPipeline().Skip(20).Limit(10) // page 3
func (p Pipeline) Skip(n int64) Pipeline {
	return p.addStage(stSkip, n)
}

// Unwind emits one output document per element of the sequence at path;
// documents whose path is missing or empty are dropped.
//
// MongoDB equivalent:
//
//	{ $unwind: "$field" }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/unwind/
func (p Pipeline) Unwind(path string) Pipeline {
	return p.addStage(stUnwind, path)
}

// UnwindOpts carries the long-form $unwind options.
type UnwindOpts struct {
	// Path is the array field path (e.g. "$tags"). Required.
	Path string
	// IncludeArrayIndex names a field to hold each element's index.
	IncludeArrayIndex string
	// PreserveNullAndEmptyArrays keeps documents whose path is null,
	// missing, or an empty sequence, instead of dropping them.
	PreserveNullAndEmptyArrays bool
}

// UnwindWithOpts is Unwind with the long-form options.
//
// MongoDB equivalent:
//
//	{ $unwind: { path: "$field", includeArrayIndex: "idx", preserveNullAndEmptyArrays: true } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/unwind/
func (p Pipeline) UnwindWithOpts(opts UnwindOpts) Pipeline {
	doc := bson.D{{Key: "path", Value: opts.Path}}
	if opts.IncludeArrayIndex != "" {
		doc = append(doc, bson.E{Key: "includeArrayIndex", Value: opts.IncludeArrayIndex})
	}
	if opts.PreserveNullAndEmptyArrays {
		doc = append(doc, bson.E{Key: "preserveNullAndEmptyArrays", Value: true})
	}
	return p.addStage(stUnwind, doc)
}

// LookupOpts carries the equality-join form of $lookup.
type LookupOpts struct {
	// From is the foreign collection name.
	From string
	// LocalField is the field on the input documents.
	LocalField string
	// ForeignField is the field on the foreign collection's documents.
	ForeignField string
	// As names the output array field.
	As string
}

// Lookup joins the foreign collection on LocalField == ForeignField,
// attaching every match as an array under As. The interpreter resolves the
// foreign collection through its Env's LookupSource.
//
// MongoDB equivalent:
//
//	{ $lookup: { from: "coll", localField: "f1", foreignField: "f2", as: "output" } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/lookup/
func (p Pipeline) Lookup(opts LookupOpts) Pipeline {
	doc := bson.D{
		{Key: "from", Value: opts.From},
		{Key: "localField", Value: opts.LocalField},
		{Key: "foreignField", Value: opts.ForeignField},
		{Key: "as", Value: opts.As},
	}
	return p.addStage(stLookup, doc)
}

// LookupPipelineOpts carries the sub-pipeline form of $lookup.
type LookupPipelineOpts struct {
	From     string
	Let      bson.D   // variables bound for the sub-pipeline's $$refs
	Pipeline Pipeline // stages applied to the foreign collection
	As       string
}

// LookupPipeline joins via a sub-pipeline evaluated against the foreign
// collection, with Let bindings visible inside it as $$variables.
//
// MongoDB equivalent:
//
//	{ $lookup: { from: "coll", let: { ... }, pipeline: [ ... ], as: "output" } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/lookup/
func (p Pipeline) LookupPipeline(opts LookupPipelineOpts) Pipeline {
	doc := bson.D{
		{Key: "from", Value: opts.From},
	}
	if len(opts.Let) > 0 {
		doc = append(doc, bson.E{Key: "let", Value: opts.Let})
	}
	doc = append(doc, bson.E{Key: "pipeline", Value: opts.Pipeline.stages})
	doc = append(doc, bson.E{Key: "as", Value: opts.As})
	return p.addStage(stLookup, doc)
}

// AddFields evaluates each spec entry as an expression and merges the
// results into every document.
//
// MongoDB equivalent:
//
//	{ $addFields: { field1: <expression>, field2: <expression> } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/addFields/
//
// Example:
//
//	p := gmqb.NewPipeline().AddFields(gmqb.AddFieldsSpec(
//	    gmqb.AddField("fullName", gmqb.ExprConcat("$firstName", " ", "$lastName")),
//	    gmqb.AddField("isAdult", gmqb.ExprGte("$age", 18)),
//	))
func (p Pipeline) AddFields(fields bson.D) Pipeline {
	return p.addStage(stAddFields, fields)
}

// AddField pairs an output field with its expression, for AddFieldsSpec.
func AddField(field string, expr interface{}) bson.E {
	return bson.E{Key: field, Value: expr}
}

// AddFieldsSpec assembles an $addFields (or $set stage) argument from
// AddField pairs.
func AddFieldsSpec(fields ...bson.E) bson.D {
	d := make(bson.D, len(fields))
	copy(d, fields)
	return d
}

// SetFields is AddFields under its $set stage spelling; the interpreter
// treats the two identically.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/set/
func (p Pipeline) SetFields(fields bson.D) Pipeline {
	return p.addStage(opSet, fields)
}

// Unset removes the named fields from every document.
//
// MongoDB equivalent:
//
//	{ $unset: ["field1", "field2"] }   // multiple
//	{ $unset: "field" }                // single
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/unset/
func (p Pipeline) Unset(fields ...string) Pipeline {
	if len(fields) == 1 {
		return p.addStage(opUnset, fields[0])
	}
	return p.addStage(opUnset, fields)
}

// Count replaces the stream with a single {field: N} document holding the
// number of documents that reached this stage.
//
// MongoDB equivalent:
//
//	{ $count: "fieldName" }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/count/
func (p Pipeline) Count(field string) Pipeline {
	return p.addStage(stCount, field)
}

// --- Wire-compatibility stages ---
// Everything below builds a stage the interpreter passes through unchanged.

// Facet names several sub-pipelines to run over one input stream.
//
// MongoDB equivalent:
//
//	{ $facet: { facet1: [ stage1, ... ], facet2: [ stage1, ... ] } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/facet/
func (p Pipeline) Facet(facets map[string]Pipeline) Pipeline {
	doc := make(bson.D, 0, len(facets))
	for name, sub := range facets {
		doc = append(doc, bson.E{Key: name, Value: sub.stages})
	}
	return p.addStage(stFacet, doc)
}

// BucketOpts carries the $bucket stage argument.
type BucketOpts struct {
	GroupBy    interface{}   // expression to bucket by
	Boundaries []interface{} // ordered boundary values
	Default    interface{}   // bucket for out-of-range documents
	Output     bson.D        // per-bucket output spec
}

// Bucket groups documents into fixed-boundary buckets.
//
// MongoDB equivalent:
//
//	{ $bucket: { groupBy: <expr>, boundaries: [...], default: <val>, output: { ... } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/bucket/
func (p Pipeline) Bucket(opts BucketOpts) Pipeline {
	doc := bson.D{
		{Key: "groupBy", Value: opts.GroupBy},
		{Key: "boundaries", Value: opts.Boundaries},
	}
	if opts.Default != nil {
		doc = append(doc, bson.E{Key: "default", Value: opts.Default})
	}
	if len(opts.Output) > 0 {
		doc = append(doc, bson.E{Key: "output", Value: opts.Output})
	}
	return p.addStage(stBucket, doc)
}

// BucketAutoOpts carries the $bucketAuto stage argument.
type BucketAutoOpts struct {
	GroupBy     interface{} // expression to bucket by
	Buckets     int         // bucket count
	Output      bson.D      // per-bucket output spec
	Granularity string      // preferred number series, e.g. "R5"
}

// BucketAuto groups documents into evenly-populated buckets.
//
// MongoDB equivalent:
//
//	{ $bucketAuto: { groupBy: <expr>, buckets: n, output: { ... }, granularity: "R5" } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/bucketAuto/
func (p Pipeline) BucketAuto(opts BucketAutoOpts) Pipeline {
	doc := bson.D{
		{Key: "groupBy", Value: opts.GroupBy},
		{Key: "buckets", Value: opts.Buckets},
	}
	if len(opts.Output) > 0 {
		doc = append(doc, bson.E{Key: "output", Value: opts.Output})
	}
	if opts.Granularity != "" {
		doc = append(doc, bson.E{Key: "granularity", Value: opts.Granularity})
	}
	return p.addStage(stBucketAuto, doc)
}

// ReplaceRoot promotes an embedded document to the document root.
//
// MongoDB equivalent:
//
//	{ $replaceRoot: { newRoot: <expression> } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/replaceRoot/
func (p Pipeline) ReplaceRoot(newRoot interface{}) Pipeline {
	return p.addStage(stReplaceRoot, bson.D{{Key: "newRoot", Value: newRoot}})
}

// ReplaceWith is ReplaceRoot under its shorthand spelling.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/replaceWith/
func (p Pipeline) ReplaceWith(newRoot interface{}) Pipeline {
	return p.addStage(stReplaceWith, newRoot)
}

// Redact prunes or keeps subtrees of each document based on an expression
// over the document itself.
//
// MongoDB equivalent:
//
//	{ $redact: <expression> }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/redact/
func (p Pipeline) Redact(expression interface{}) Pipeline {
	return p.addStage(stRedact, expression)
}

// Sample selects size documents at random. The router counts a
// large-enough sample as heavy aggregation.
//
// MongoDB equivalent:
//
//	{ $sample: { size: n } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/sample/
func (p Pipeline) Sample(size int64) Pipeline {
	return p.addStage(stSample, bson.D{{Key: "size", Value: size}})
}

// SortByCount groups by an expression and sorts the groups by descending
// count.
//
// MongoDB equivalent:
//
//	{ $sortByCount: <expression> }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/sortByCount/
func (p Pipeline) SortByCount(expression interface{}) Pipeline {
	return p.addStage(stSortByCount, expression)
}

// UnionWith appends another collection's documents (optionally through a
// sub-pipeline) to the stream.
//
// MongoDB equivalent:
//
//	{ $unionWith: { coll: "otherColl", pipeline: [...] } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/unionWith/
func (p Pipeline) UnionWith(coll string, subPipeline *Pipeline) Pipeline {
	doc := bson.D{{Key: "coll", Value: coll}}
	if subPipeline != nil && len(subPipeline.stages) > 0 {
		doc = append(doc, bson.E{Key: "pipeline", Value: subPipeline.stages})
	}
	return p.addStage(stUnionWith, doc)
}

// Out writes the stream to a collection. Must be the last stage.
//
// MongoDB equivalent:
//
//	{ $out: "collectionName" }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/out/
func (p Pipeline) Out(collection string) Pipeline {
	return p.addStage(stOut, collection)
}

// OutToDb is Out targeting a collection in another database.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/out/
func (p Pipeline) OutToDb(db, collection string) Pipeline {
	return p.addStage(stOut, bson.D{{Key: "db", Value: db}, {Key: "coll", Value: collection}})
}

// MergeOpts carries the $merge stage argument.
type MergeOpts struct {
	Into           interface{} // collection name, or bson.D{db, coll}
	On             interface{} // match field or field list
	Let            bson.D      // variables for a whenMatched pipeline
	WhenMatched    interface{} // "replace", "keepExisting", "merge", "fail", or a pipeline
	WhenNotMatched string      // "insert", "discard", or "fail"
}

// Merge writes the stream into a collection with per-document merge
// behavior. Must be the last stage.
//
// MongoDB equivalent:
//
//	{ $merge: { into: "coll", on: "_id", whenMatched: "merge", whenNotMatched: "insert" } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/merge/
func (p Pipeline) Merge(opts MergeOpts) Pipeline {
	doc := bson.D{{Key: "into", Value: opts.Into}}
	if opts.On != nil {
		doc = append(doc, bson.E{Key: "on", Value: opts.On})
	}
	if len(opts.Let) > 0 {
		doc = append(doc, bson.E{Key: "let", Value: opts.Let})
	}
	if opts.WhenMatched != nil {
		doc = append(doc, bson.E{Key: "whenMatched", Value: opts.WhenMatched})
	}
	if opts.WhenNotMatched != "" {
		doc = append(doc, bson.E{Key: "whenNotMatched", Value: opts.WhenNotMatched})
	}
	return p.addStage(stMerge, doc)
}

// GraphLookupOpts carries the $graphLookup stage argument.
type GraphLookupOpts struct {
	From                    string
	StartWith               interface{}
	ConnectFromField        string
	ConnectToField          string
	As                      string
	MaxDepth                *int
	DepthField              string
	RestrictSearchWithMatch Filter
}

// GraphLookup walks a self-referential collection transitively. The router
// counts it as heavy aggregation.
//
// MongoDB equivalent:
//
//	{ $graphLookup: { from: "coll", startWith: "$field", connectFromField: "f1",
//	  connectToField: "f2", as: "output", maxDepth: n, depthField: "depth" } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/graphLookup/
func (p Pipeline) GraphLookup(opts GraphLookupOpts) Pipeline {
	doc := bson.D{
		{Key: "from", Value: opts.From},
		{Key: "startWith", Value: opts.StartWith},
		{Key: "connectFromField", Value: opts.ConnectFromField},
		{Key: "connectToField", Value: opts.ConnectToField},
		{Key: "as", Value: opts.As},
	}
	if opts.MaxDepth != nil {
		doc = append(doc, bson.E{Key: "maxDepth", Value: *opts.MaxDepth})
	}
	if opts.DepthField != "" {
		doc = append(doc, bson.E{Key: "depthField", Value: opts.DepthField})
	}
	if !opts.RestrictSearchWithMatch.IsEmpty() {
		doc = append(doc, bson.E{Key: "restrictSearchWithMatch", Value: opts.RestrictSearchWithMatch.d})
	}
	return p.addStage(stGraphLookup, doc)
}

// GeoNearOpts carries the $geoNear stage argument.
type GeoNearOpts struct {
	Near          interface{} // GeoJSON point or legacy coordinate pair
	DistanceField string
	Spherical     bool
	MaxDistance   *float64
	MinDistance   *float64
	Query         Filter
	IncludeLocs   string
	Key           string
}

// GeoNear orders documents by proximity to a point. First-stage only.
//
// MongoDB equivalent:
//
//	{ $geoNear: { near: point, distanceField: "dist", spherical: true, ... } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/geoNear/
func (p Pipeline) GeoNear(opts GeoNearOpts) Pipeline {
	doc := bson.D{
		{Key: "near", Value: opts.Near},
		{Key: "distanceField", Value: opts.DistanceField},
		{Key: "spherical", Value: opts.Spherical},
	}
	if opts.MaxDistance != nil {
		doc = append(doc, bson.E{Key: "maxDistance", Value: *opts.MaxDistance})
	}
	if opts.MinDistance != nil {
		doc = append(doc, bson.E{Key: "minDistance", Value: *opts.MinDistance})
	}
	if !opts.Query.IsEmpty() {
		doc = append(doc, bson.E{Key: "query", Value: opts.Query.d})
	}
	if opts.IncludeLocs != "" {
		doc = append(doc, bson.E{Key: "includeLocs", Value: opts.IncludeLocs})
	}
	if opts.Key != "" {
		doc = append(doc, bson.E{Key: "key", Value: opts.Key})
	}
	return p.addStage(stGeoNear, doc)
}

// Fill backfills null/missing values per the FillSpec.
//
// MongoDB equivalent:
//
//	{ $fill: { output: { field: { method: "linear" } } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/fill/
func (p Pipeline) Fill(spec bson.D) Pipeline {
	return p.addStage(stFill, spec)
}

// FillOutput pairs a field with its fill rule (FillMethod or FillValue).
func FillOutput(field string, spec bson.E) bson.E {
	return bson.E{Key: field, Value: bson.D{spec}}
}

// FillMethod selects an interpolation method: "linear" or "locf".
func FillMethod(method string) bson.E {
	return bson.E{Key: "method", Value: method}
}

// FillValue selects a constant fill value.
func FillValue(value interface{}) bson.E {
	return bson.E{Key: "value", Value: value}
}

// FillSpec assembles a $fill stage argument from FillOutput pairs. Builds
// the output-only form; partition/sort variants take a raw bson.D.
func FillSpec(outputs ...bson.E) bson.D {
	d := make(bson.D, len(outputs))
	copy(d, outputs)
	return bson.D{{Key: "output", Value: d}}
}

// Densify inserts synthetic documents where a sequence has gaps.
//
// MongoDB equivalent:
//
//	{ $densify: { field: "timestamp", range: { step: 1, unit: "hour", bounds: "full" } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/densify/
func (p Pipeline) Densify(spec bson.D) Pipeline {
	return p.addStage(stDensify, spec)
}

// DensifyRange builds the range half of a $densify argument. bounds is
// "full", "partition", or a [lower, upper] array.
func DensifyRange(step interface{}, unit string, bounds interface{}) bson.D {
	d := bson.D{{Key: "step", Value: step}}
	if unit != "" {
		d = append(d, bson.E{Key: "unit", Value: unit})
	}
	d = append(d, bson.E{Key: "bounds", Value: bounds})
	return d
}

// DensifySpec assembles a $densify stage argument.
func DensifySpec(field string, rangeSpec bson.D) bson.D {
	return bson.D{
		{Key: "field", Value: field},
		{Key: "range", Value: rangeSpec},
	}
}

// SetWindowFields computes window-function outputs over partitions of the
// stream.
//
// MongoDB equivalent:
//
//	{ $setWindowFields: { partitionBy: "$field", sortBy: { ... }, output: { ... } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/aggregation/setWindowFields/
func (p Pipeline) SetWindowFields(spec bson.D) Pipeline {
	return p.addStage(stWindowFields, spec)
}

// WindowOutput pairs an output field with its accumulator and window.
//
// Example:
//
//	gmqb.WindowOutput("cumulativeQuantity", gmqb.AccSum("$quantity"),
//	    gmqb.Window("documents", "unbounded", "current"))
func WindowOutput(field string, expr interface{}, window bson.E) bson.E {
	var outDoc bson.D
	if extD, ok := expr.(bson.D); ok {
		outDoc = make(bson.D, len(extD), len(extD)+1)
		copy(outDoc, extD)
		if window.Key != "" {
			outDoc = append(outDoc, window)
		}
	} else {
		// Not an accumulator document; wrap it so the stage stays shaped.
		outDoc = bson.D{{Key: opExpr, Value: expr}}
		if window.Key != "" {
			outDoc = append(outDoc, window)
		}
	}

	return bson.E{Key: field, Value: outDoc}
}

// Window builds a window bound for WindowOutput. boundsType is "documents"
// or "range"; bounds are numbers or "unbounded"/"current".
func Window(boundsType string, lowerBound, upperBound interface{}) bson.E {
	return bson.E{Key: "window", Value: bson.D{
		{Key: boundsType, Value: bson.A{lowerBound, upperBound}},
	}}
}

// SetWindowFieldsSpec assembles a $setWindowFields stage argument.
func SetWindowFieldsSpec(partitionBy interface{}, sortBy bson.D, outputs ...bson.E) bson.D {
	d := make(bson.D, 0, 3)
	if partitionBy != nil && partitionBy != "" {
		d = append(d, bson.E{Key: "partitionBy", Value: partitionBy})
	}
	if len(sortBy) > 0 {
		d = append(d, bson.E{Key: "sortBy", Value: sortBy})
	}

	if len(outputs) > 0 {
		outDoc := make(bson.D, len(outputs))
		copy(outDoc, outputs)
		d = append(d, bson.E{Key: "output", Value: outDoc})
	}

	return d
}

// RawStage appends a hand-built stage, for stage names the builder has no
// method for.
//
// Example:
//
//	p := gmqb.NewPipeline().RawStage("$search", bson.D{
//	    {"text", bson.D{{"query", "coffee"}, {"path", "description"}}},
//	})
func (p Pipeline) RawStage(name string, value interface{}) Pipeline {
	return p.addStage(name, value)
}
