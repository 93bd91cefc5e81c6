package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestRouteIDLookupGoesOLTP(t *testing.T) {
	req := Request{Op: OpFind, Filter: bson.D{{Key: "_id", Value: "user123"}}}
	d := Route(req, DefaultConfig())
	assert.Equal(t, OLTP, d.Backend)
	assert.True(t, d.Characteristics.HasIDLookup)
	assert.Equal(t, 1, d.Characteristics.EstimatedRows)
	assert.Contains(t, d.Reason, "id lookup")
}

func TestRouteIDLookupWithIn(t *testing.T) {
	req := Request{Op: OpFind, Filter: bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{"a", "b", "c"}}}}}}
	d := Route(req, DefaultConfig())
	assert.Equal(t, OLTP, d.Backend)
	assert.True(t, d.Characteristics.HasIDLookup)
}

func TestRoutePipelineLeadingMatchIDLookupGoesOLTP(t *testing.T) {
	req := Request{
		Op: OpAggregate,
		Pipeline: []bson.D{
			{{Key: "$match", Value: bson.D{{Key: "_id", Value: "user123"}}}},
		},
	}
	d := Route(req, DefaultConfig())
	assert.Equal(t, OLTP, d.Backend)
	assert.True(t, d.Characteristics.HasIDLookup)
	assert.Equal(t, 1, d.Characteristics.EstimatedRows)
}

func TestRoutePipelineLeadingMatchTimeRangeGoesOLAP(t *testing.T) {
	req := Request{
		Op: OpAggregate,
		Pipeline: []bson.D{
			{{Key: "$match", Value: bson.D{{Key: "created_at", Value: bson.D{{Key: "$gte", Value: "2026-01-01"}}}}}},
		},
	}
	d := Route(req, DefaultConfig())
	assert.Equal(t, OLAP, d.Backend)
	assert.True(t, d.Characteristics.IsTimeRangeQuery)
}

func TestRouteIDLookupWithLargeInFallsThroughHeuristics(t *testing.T) {
	values := make(bson.A, 101)
	for i := range values {
		values[i] = i
	}
	req := Request{Op: OpFind, Filter: bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: values}}}}}
	d := Route(req, DefaultConfig())
	assert.False(t, d.Characteristics.HasIDLookup)
}

func TestRouteHeavyAggregationGoesOLAP(t *testing.T) {
	req := Request{
		Op: OpAggregate,
		Pipeline: []bson.D{
			{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$cat"}, {Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		},
	}
	d := Route(req, DefaultConfig())
	assert.Equal(t, OLAP, d.Backend)
	assert.True(t, d.Characteristics.HasHeavyAggregation)
	assert.Contains(t, d.Characteristics.OlapStages, "$group")
	assert.Contains(t, d.Reason, "Heavy aggregation")
}

func TestRouteTimeRangeGoesOLAP(t *testing.T) {
	req := Request{
		Op:     OpFind,
		Filter: bson.D{{Key: "created_at", Value: bson.D{{Key: "$gte", Value: "2026-01-01"}}}},
	}
	d := Route(req, DefaultConfig())
	assert.Equal(t, OLAP, d.Backend)
	assert.True(t, d.Characteristics.IsTimeRangeQuery)
}

func TestRouteRowThresholdGoesOLAP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RowThreshold = 100
	req := Request{Op: OpFind}
	d := Route(req, cfg)
	assert.Equal(t, OLAP, d.Backend)
	assert.Equal(t, unboundedScanEstimate, d.Characteristics.EstimatedRows)
}

func TestRouteSmallLimitGoesOLTP(t *testing.T) {
	req := Request{Op: OpFind, Limit: 5}
	d := Route(req, DefaultConfig())
	assert.Equal(t, OLTP, d.Backend)
	assert.Equal(t, 5, d.Characteristics.EstimatedRows)
}

func TestRoutePipelineLimitStageWins(t *testing.T) {
	req := Request{
		Op:       OpAggregate,
		Pipeline: []bson.D{{{Key: "$limit", Value: int64(3)}}},
		Limit:    5000,
	}
	d := Route(req, DefaultConfig())
	assert.Equal(t, 3, d.Characteristics.EstimatedRows)
	assert.Equal(t, OLTP, d.Backend)
}

func TestRouteOverrideBeatsHeuristics(t *testing.T) {
	req := Request{
		Op:       OpAggregate,
		Pipeline: []bson.D{{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$cat"}}}}},
		Override: OLTP,
	}
	d := Route(req, DefaultConfig())
	assert.Equal(t, OLTP, d.Backend)
	assert.Contains(t, d.Reason, "override")
}

func TestRouteOverrideFallsBackWhenUnconfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OLAPConfigured = false
	req := Request{Op: OpFind, Override: OLAP}
	d := Route(req, cfg)
	assert.Equal(t, OLTP, d.Backend)
	assert.Contains(t, d.Reason, "fell back")
}

func TestRouteAutoRoutingDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoRoutingEnabled = false
	req := Request{
		Op:       OpAggregate,
		Pipeline: []bson.D{{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$cat"}}}}},
	}
	d := Route(req, cfg)
	assert.Equal(t, OLTP, d.Backend)
	assert.Contains(t, d.Reason, "disabled")
}

func TestRouteHeavyAggregationFallsBackWhenOLAPUnconfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OLAPConfigured = false
	req := Request{
		Op:       OpAggregate,
		Pipeline: []bson.D{{{Key: "$facet", Value: bson.D{}}}},
	}
	d := Route(req, cfg)
	assert.Equal(t, OLTP, d.Backend)
}

func TestRoutePreferOlapForAggregations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PreferOlapForAggregations = true
	req := Request{Op: OpAggregate, Pipeline: []bson.D{
		{{Key: "$match", Value: bson.D{{Key: "x", Value: 1}}}},
		{{Key: "$limit", Value: int64(5)}},
	}}
	d := Route(req, cfg)
	assert.Equal(t, OLAP, d.Backend)
	assert.Contains(t, d.Reason, "preferOlapForAggregations")
}

func TestRouteWritesNeverGoThroughRouter(t *testing.T) {
	// Router purity: this package only exposes Route for reads (Find,
	// Aggregate, Count, Distinct): there is no OpKind for writes, so a
	// write simply never constructs a Request in the first place.
	assert.NotContains(t, []OpKind{OpFind, OpAggregate, OpCount, OpDistinct}, OpKind(999))
}

func TestKeyStableAcrossEquivalentRequests(t *testing.T) {
	req1 := Request{Op: OpFind, Filter: bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 30}}}}}
	req2 := Request{Op: OpFind, Filter: bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 30}}}}}
	assert.Equal(t, Key(req1), Key(req2))
}

func TestKeyDistinguishesLimits(t *testing.T) {
	req1 := Request{Op: OpFind, Limit: 5}
	req2 := Request{Op: OpFind, Limit: 50_000}
	assert.NotEqual(t, Key(req1), Key(req2))
}
