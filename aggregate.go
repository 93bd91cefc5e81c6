package gmqb

import (
	"context"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// LookupSource resolves the foreign collection a $lookup stage reads from.
// The boundary (backend/router layer) supplies an implementation; the
// interpreter never touches storage directly. Implementations return the
// foreign collection's documents unmodified; the interpreter applies the
// sub-pipeline (with its let bindings) itself, so pipeline is informational
// and must not be pre-applied to the returned set.
type LookupSource interface {
	Lookup(ctx context.Context, db, collection string, pipeline []bson.D) ([]bson.D, error)
}

// VectorSearcher executes a $vectorSearch stage's parameters against the
// configured AI binding. A nil VectorSearcher makes $vectorSearch fail with
// KindInvalidOperation: vector search requires an AI binding.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, params bson.D) ([]bson.D, error)
}

// Env supplies the collaborators an aggregation pipeline needs beyond pure
// document transformation: the foreign-collection resolver for $lookup and
// the vector-search boundary for $vectorSearch.
type Env struct {
	Lookup LookupSource
	Vector VectorSearcher
	DB     string
}

// Run executes the pipeline's stages in order against docs, returning the
// final document stream.
func (p Pipeline) Run(ctx context.Context, docs []bson.D, env Env) ([]bson.D, error) {
	return RunPipeline(ctx, p.stages, docs, env)
}

// RunPipeline is the free-function form of Pipeline.Run, operating on a raw
// []bson.D stage list.
func RunPipeline(ctx context.Context, stages []bson.D, docs []bson.D, env Env) ([]bson.D, error) {
	return runPipelineVars(ctx, stages, docs, env, nil)
}

// runPipelineVars executes stages with vars available to every expression
// ($project/$addFields/$group field specs) for the duration of the run;
// this is how a $lookup pipeline stage's `let` bindings reach its sub-pipeline.
func runPipelineVars(ctx context.Context, stages []bson.D, docs []bson.D, env Env, vars Vars) ([]bson.D, error) {
	cur := docs
	for _, stage := range stages {
		if len(stage) != 1 {
			return nil, newErr(KindInvalidOperation, nil, "pipeline stage must have exactly one key")
		}
		select {
		case <-ctx.Done():
			return nil, newErr(KindAborted, ctx.Err(), "pipeline execution cancelled")
		default:
		}
		name := stage[0].Key
		var err error
		cur, err = runStage(ctx, name, stage[0].Value, cur, env, vars)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func runStage(ctx context.Context, name string, arg interface{}, docs []bson.D, env Env, vars Vars) ([]bson.D, error) {
	switch name {
	case stMatch:
		filter := asD(arg)
		out := make([]bson.D, 0, len(docs))
		for _, d := range docs {
			if Matches(filter, d) {
				out = append(out, d)
			}
		}
		return out, nil
	case stProject:
		return stageProject(asD(arg), docs, vars)
	case stAddFields, opSet:
		return stageAddFields(asD(arg), docs, vars)
	case opUnset:
		return stageUnset(arg, docs)
	case opSort:
		return stageSort(asD(arg), docs), nil
	case stLimit:
		n, _ := asFloat(arg)
		if int(n) < len(docs) {
			if int(n) < 0 {
				return nil, newErr(KindInvalidArgument, ErrNegativeArg, "$limit must be non-negative")
			}
			return append([]bson.D{}, docs[:int(n)]...), nil
		}
		return docs, nil
	case stSkip:
		n, _ := asFloat(arg)
		if n < 0 {
			return nil, newErr(KindInvalidArgument, ErrNegativeArg, "$skip must be non-negative")
		}
		if int(n) >= len(docs) {
			return []bson.D{}, nil
		}
		return append([]bson.D{}, docs[int(n):]...), nil
	case stCount:
		field, _ := arg.(string)
		return []bson.D{{{Key: field, Value: int64(len(docs))}}}, nil
	case stUnwind:
		return stageUnwind(arg, docs)
	case stGroup:
		return stageGroup(asD(arg), docs, vars)
	case stLookup:
		return stageLookup(ctx, asD(arg), docs, env)
	case stVectorSearch:
		if env.Vector == nil {
			return nil, newErr(KindInvalidOperation, nil, "AI binding required")
		}
		results, err := env.Vector.VectorSearch(ctx, asD(arg))
		if err != nil {
			return nil, newErr(KindInternal, err, "$vectorSearch failed")
		}
		return results, nil
	default:
		// Buildable-but-unsupported stages ($facet, $bucket, $geoNear, ...)
		// are left to the boundary layer; the core interpreter passes the
		// stream through unchanged rather than silently mutating it.
		return docs, nil
	}
}

func stageProject(spec bson.D, docs []bson.D, vars Vars) ([]bson.D, error) {
	if len(spec) == 0 {
		return docs, nil
	}
	includeMode := false
	idExcluded := false
	for _, e := range spec {
		if e.Key == "_id" {
			if isFalsy01(e.Value) {
				idExcluded = true
			}
			continue
		}
		if n, ok := asFloat(e.Value); ok && n == 1 {
			includeMode = true
		}
	}

	out := make([]bson.D, len(docs))
	for i, d := range docs {
		if includeMode {
			proj := bson.D{}
			if !idExcluded {
				if v := Get(d, "_id"); !IsMissing(v) {
					proj = append(proj, bson.E{Key: "_id", Value: v})
				}
			}
			for _, e := range spec {
				if e.Key == "_id" {
					continue
				}
				if n, ok := asFloat(e.Value); ok {
					if n == 1 {
						if v := Get(d, e.Key); !IsMissing(v) {
							proj = append(proj, bson.E{Key: e.Key, Value: v})
						}
					}
					continue
				}
				v, err := EvalExpr(e.Value, d, vars)
				if err != nil {
					return nil, err
				}
				proj = append(proj, bson.E{Key: e.Key, Value: v})
			}
			out[i] = proj
		} else {
			proj := cloneD(d)
			if idExcluded {
				proj = Unset(proj, "_id")
			}
			for _, e := range spec {
				if e.Key == "_id" {
					continue
				}
				if n, ok := asFloat(e.Value); ok && n == 0 {
					proj = Unset(proj, e.Key)
					continue
				}
				v, err := EvalExpr(e.Value, d, vars)
				if err != nil {
					return nil, err
				}
				var serr error
				proj, serr = Set(proj, e.Key, v)
				if serr != nil {
					return nil, serr
				}
			}
			out[i] = proj
		}
	}
	return out, nil
}

func isFalsy01(v interface{}) bool {
	n, ok := asFloat(v)
	return ok && n == 0
}

func stageAddFields(spec bson.D, docs []bson.D, vars Vars) ([]bson.D, error) {
	out := make([]bson.D, len(docs))
	for i, d := range docs {
		proj := cloneD(d)
		for _, e := range spec {
			v, err := EvalExpr(e.Value, d, vars)
			if err != nil {
				return nil, err
			}
			var serr error
			proj, serr = Set(proj, e.Key, v)
			if serr != nil {
				return nil, serr
			}
		}
		out[i] = proj
	}
	return out, nil
}

func stageUnset(arg interface{}, docs []bson.D) ([]bson.D, error) {
	var fields []string
	switch a := arg.(type) {
	case string:
		fields = []string{a}
	default:
		for _, v := range asA(arg) {
			if s, ok := v.(string); ok {
				fields = append(fields, s)
			}
		}
	}
	out := make([]bson.D, len(docs))
	for i, d := range docs {
		proj := cloneD(d)
		for _, f := range fields {
			proj = Unset(proj, f)
		}
		out[i] = proj
	}
	return out, nil
}

func stageSort(spec bson.D, docs []bson.D) []bson.D {
	out := append([]bson.D{}, docs...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, rule := range spec {
			dir, _ := asFloat(rule.Value)
			a := Get(out[i], rule.Key)
			b := Get(out[j], rule.Key)
			c := Compare(a, b)
			if c == 0 {
				continue
			}
			if dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out
}

func stageUnwind(arg interface{}, docs []bson.D) ([]bson.D, error) {
	var path string
	preserve := false
	var indexField string
	switch a := arg.(type) {
	case string:
		path = strings.TrimPrefix(a, "$")
	default:
		d := asD(a)
		for _, e := range d {
			switch e.Key {
			case "path":
				if s, ok := e.Value.(string); ok {
					path = strings.TrimPrefix(s, "$")
				}
			case "preserveNullAndEmptyArrays":
				preserve, _ = e.Value.(bool)
			case "includeArrayIndex":
				if s, ok := e.Value.(string); ok {
					indexField = s
				}
			}
		}
	}
	if path == "" {
		return nil, newErr(KindInvalidOperation, nil, "$unwind requires a field path")
	}

	out := []bson.D{}
	for _, d := range docs {
		v := Get(d, path)
		if !isSequence(v) || len(asA(v)) == 0 {
			if preserve {
				doc := cloneD(d)
				if IsMissing(v) || isSequence(v) {
					doc = Unset(doc, path)
				}
				if indexField != "" {
					var err error
					doc, err = Set(doc, indexField, nil)
					if err != nil {
						return nil, err
					}
				}
				out = append(out, doc)
			}
			continue
		}
		for idx, elem := range asA(v) {
			doc := cloneD(d)
			var err error
			doc, err = Set(doc, path, elem)
			if err != nil {
				return nil, err
			}
			if indexField != "" {
				doc, err = Set(doc, indexField, int64(idx))
				if err != nil {
					return nil, err
				}
			}
			out = append(out, doc)
		}
	}
	return out, nil
}

func stageGroup(spec bson.D, docs []bson.D, vars Vars) ([]bson.D, error) {
	var idExpr interface{}
	fieldSpecs := bson.D{}
	for _, e := range spec {
		if e.Key == "_id" {
			idExpr = e.Value
			continue
		}
		fieldSpecs = append(fieldSpecs, e)
	}

	type groupEntry struct {
		key  interface{}
		docs []bson.D
	}
	var order []string
	groups := map[string]*groupEntry{}
	keyOf := func(k interface{}) string {
		return toCompactJSON(bson.D{{Key: "k", Value: k}})
	}

	for _, d := range docs {
		idVal, err := EvalExpr(idExpr, d, vars)
		if err != nil {
			return nil, err
		}
		gk := keyOf(idVal)
		g, ok := groups[gk]
		if !ok {
			g = &groupEntry{key: idVal}
			groups[gk] = g
			order = append(order, gk)
		}
		g.docs = append(g.docs, d)
	}

	out := make([]bson.D, 0, len(order))
	for _, gk := range order {
		g := groups[gk]
		result := bson.D{{Key: "_id", Value: g.key}}
		for _, fs := range fieldSpecs {
			accSpec, ok := fs.Value.(bson.D)
			if !ok || len(accSpec) != 1 {
				return nil, newErr(KindInvalidOperation, nil, "$group field %q must be a single-operator accumulator", fs.Key)
			}
			v, err := runAccumulator(accSpec[0].Key, accSpec[0].Value, g.docs, vars)
			if err != nil {
				return nil, err
			}
			result = append(result, bson.E{Key: fs.Key, Value: v})
		}
		out = append(out, result)
	}
	return out, nil
}

func runAccumulator(op string, expr interface{}, docs []bson.D, vars Vars) (interface{}, error) {
	switch op {
	case accSum:
		total := 0.0
		allInt := true
		for _, d := range docs {
			v, err := EvalExpr(expr, d, vars)
			if err != nil {
				return nil, err
			}
			f, ok := asFloat(v)
			if !ok {
				continue
			}
			if !isIntegral(v) {
				allInt = false
			}
			total += f
		}
		if allInt {
			return int64(total), nil
		}
		return total, nil
	case accAvg:
		total := 0.0
		count := 0
		for _, d := range docs {
			v, err := EvalExpr(expr, d, vars)
			if err != nil {
				return nil, err
			}
			f, ok := asFloat(v)
			if !ok {
				continue
			}
			total += f
			count++
		}
		if count == 0 {
			return nil, nil
		}
		return total / float64(count), nil
	case opMin:
		var best interface{} = Missing
		for _, d := range docs {
			v, err := EvalExpr(expr, d, vars)
			if err != nil {
				return nil, err
			}
			if IsMissing(best) || Compare(v, best) < 0 {
				best = v
			}
		}
		if IsMissing(best) {
			return nil, nil
		}
		return best, nil
	case opMax:
		var best interface{} = Missing
		for _, d := range docs {
			v, err := EvalExpr(expr, d, vars)
			if err != nil {
				return nil, err
			}
			if IsMissing(best) || Compare(v, best) > 0 {
				best = v
			}
		}
		if IsMissing(best) {
			return nil, nil
		}
		return best, nil
	case accFirst:
		if len(docs) == 0 {
			return nil, nil
		}
		return EvalExpr(expr, docs[0], vars)
	case accLast:
		if len(docs) == 0 {
			return nil, nil
		}
		return EvalExpr(expr, docs[len(docs)-1], vars)
	case opPush:
		arr := bson.A{}
		for _, d := range docs {
			v, err := EvalExpr(expr, d, vars)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case opAddToSet:
		arr := bson.A{}
		for _, d := range docs {
			v, err := EvalExpr(expr, d, vars)
			if err != nil {
				return nil, err
			}
			found := false
			for _, have := range arr {
				if DeepEqual(have, v) {
					found = true
					break
				}
			}
			if !found {
				arr = append(arr, v)
			}
		}
		return arr, nil
	default:
		// $group runs in a strict context: an unrecognized accumulator is a
		// stage error, not a permissive passthrough.
		return nil, newErr(KindInvalidOperation, nil, "unsupported accumulator %q", op)
	}
}

func stageLookup(ctx context.Context, spec bson.D, docs []bson.D, env Env) ([]bson.D, error) {
	var from, localField, foreignField, as string
	var letSpec bson.D
	var subPipeline []bson.D
	for _, e := range spec {
		switch e.Key {
		case "from":
			from, _ = e.Value.(string)
		case "localField":
			localField, _ = e.Value.(string)
		case "foreignField":
			foreignField, _ = e.Value.(string)
		case "as":
			as, _ = e.Value.(string)
		case "let":
			letSpec = asD(e.Value)
		case "pipeline":
			for _, s := range asA(e.Value) {
				subPipeline = append(subPipeline, asD(s))
			}
		}
	}
	if env.Lookup == nil {
		return nil, newErr(KindInvalidOperation, nil, "$lookup requires a configured foreign-collection resolver")
	}

	out := make([]bson.D, len(docs))
	for i, d := range docs {
		if len(subPipeline) > 0 {
			vars := make(Vars, len(letSpec))
			for _, e := range letSpec {
				v, err := EvalExpr(e.Value, d, vars)
				if err != nil {
					return nil, err
				}
				vars[e.Key] = v
			}
			foreign, err := env.Lookup.Lookup(ctx, env.DB, from, subPipeline)
			if err != nil {
				return nil, newErr(KindInternal, err, "$lookup pipeline fetch failed")
			}
			matched, err := runPipelineVars(ctx, subPipeline, foreign, env, vars)
			if err != nil {
				return nil, err
			}
			out[i] = mustSet(d, as, toArrayAny(matched))
			continue
		}

		foreign, err := env.Lookup.Lookup(ctx, env.DB, from, nil)
		if err != nil {
			return nil, newErr(KindInternal, err, "$lookup fetch failed")
		}
		localVal := Get(d, localField)
		matches := bson.A{}
		for _, fd := range foreign {
			if DeepEqual(Get(fd, foreignField), localVal) {
				matches = append(matches, fd)
			}
		}
		out[i] = mustSet(d, as, matches)
	}
	return out, nil
}

func toArrayAny(docs []bson.D) bson.A {
	arr := make(bson.A, len(docs))
	for i, d := range docs {
		arr[i] = d
	}
	return arr
}

func mustSet(d bson.D, field string, v interface{}) bson.D {
	out, err := Set(cloneD(d), field, v)
	if err != nil {
		return cloneD(d)
	}
	return out
}
