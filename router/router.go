// Package router implements the OLTP/OLAP backend choice for read
// operations: writes and metadata calls always go to OLTP, and reads are
// routed by a small set of heuristics over the operation's filter/pipeline
// shape.
package router

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	gmqb "github.com/squall-chua/mongofacade"
)

// Backend names a storage engine a read can be routed to.
type Backend string

const (
	OLTP Backend = "oltp"
	OLAP Backend = "olap"
)

// OpKind names the read operation being routed. Writes and metadata ops
// never go through Route; they are always OLTP, by construction of the
// core's dispatch, not by a router decision.
type OpKind int

const (
	OpFind OpKind = iota
	OpAggregate
	OpCount
	OpDistinct
)

// timeRangeFields are the recognized timestamp fields a range predicate on
// them routes to OLAP.
var timeRangeFields = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"timestamp":      true,
	"_cdc_timestamp": true,
}

// heavyAggregationStages collects into QueryCharacteristics.OlapStages
// whenever present in a pipeline; $sample only counts once its size meets
// Config.LargeSampleThreshold.
var heavyAggregationStages = map[string]bool{
	"$group":       true,
	"$bucket":      true,
	"$bucketAuto":  true,
	"$facet":       true,
	"$lookup":      true,
	"$graphLookup": true,
}

// QueryCharacteristics is the analysis Analyze produces ahead of a routing
// decision.
type QueryCharacteristics struct {
	HasHeavyAggregation bool
	OlapStages          []string
	HasIDLookup         bool
	IsTimeRangeQuery    bool
	EstimatedRows       int
}

// Request describes a single read operation to route.
type Request struct {
	Op       OpKind
	Filter   bson.D
	Pipeline []bson.D

	// Limit is the operation-level limit (find/count), independent of any
	// $limit stage in Pipeline. Zero means "no limit given."
	Limit int

	// Override, if non-empty, is an explicit caller-chosen backend.
	Override Backend
}

// Config holds the operator-tunable routing thresholds.
type Config struct {
	// RowThreshold is the estimated-row-count floor above which a read
	// routes to OLAP by scan-size alone. Defaults to 10_000.
	RowThreshold int

	// LargeSampleThreshold is the $sample size floor that counts as heavy
	// aggregation. It defaults to RowThreshold, since both describe the
	// same "this is no longer a small, cheap read" boundary.
	LargeSampleThreshold int

	// PreferOlapForAggregations routes an aggregate op to OLAP when no
	// heuristic consulted before it has already decided the backend.
	PreferOlapForAggregations bool

	// AutoRoutingEnabled, when false, forces every read to OLTP regardless
	// of heuristics (an explicit Override still applies first).
	AutoRoutingEnabled bool

	// OLTPConfigured / OLAPConfigured report whether each backend is wired
	// up at all; an Override or heuristic naming an unconfigured backend
	// falls back to OLTP.
	OLTPConfigured bool
	OLAPConfigured bool
}

// DefaultConfig returns the documented defaults: auto-routing on,
// a 10,000-row threshold, both backends assumed configured.
func DefaultConfig() Config {
	return Config{
		RowThreshold:         10_000,
		LargeSampleThreshold: 10_000,
		AutoRoutingEnabled:   true,
		OLTPConfigured:       true,
		OLAPConfigured:       true,
	}
}

// unboundedScanEstimate stands in for "more rows than we bothered to count"
// when neither a $limit stage nor an operation limit constrains a read: an
// unbounded read is a scan. It is a sentinel comparison value, not a real
// row count.
const unboundedScanEstimate = 1_000_001

// Decision is the outcome of routing one Request.
type Decision struct {
	Backend         Backend
	Characteristics QueryCharacteristics
	Reason          string
}

// Analyze inspects req and produces its QueryCharacteristics. Of the Config
// thresholds it reads only LargeSampleThreshold, which decides whether a
// $sample stage counts as heavy.
func Analyze(req Request, cfg Config) QueryCharacteristics {
	qc := QueryCharacteristics{EstimatedRows: estimateRows(req, cfg)}

	for _, stage := range req.Pipeline {
		if len(stage) != 1 {
			continue
		}
		name := stage[0].Key
		if name == "$sample" {
			if size, ok := sampleSize(stage[0].Value); ok && size >= cfg.LargeSampleThreshold {
				qc.HasHeavyAggregation = true
				qc.OlapStages = append(qc.OlapStages, name)
			}
			continue
		}
		if heavyAggregationStages[name] {
			qc.HasHeavyAggregation = true
			qc.OlapStages = append(qc.OlapStages, name)
		}
	}

	filter := effectiveFilter(req)
	qc.HasIDLookup = hasIDLookup(filter)
	if qc.HasIDLookup {
		qc.EstimatedRows = idLookupRows(filter)
	}
	qc.IsTimeRangeQuery = hasTimeRangePredicate(filter)
	return qc
}

// effectiveFilter is the predicate the filter-shaped heuristics inspect:
// the request's own Filter, or, for an aggregation that arrived with no
// separate filter, a leading {$match: ...} stage's predicate. An aggregate
// whose first stage is a point lookup on _id is a point lookup, whichever
// way the request phrased it.
func effectiveFilter(req Request) bson.D {
	if len(req.Filter) > 0 {
		return req.Filter
	}
	if len(req.Pipeline) == 0 {
		return nil
	}
	stage := req.Pipeline[0]
	if len(stage) == 1 && stage[0].Key == "$match" {
		if d, ok := stage[0].Value.(bson.D); ok {
			return d
		}
	}
	return nil
}

// idLookupRows returns the row estimate for a confirmed _id point lookup:
// 1 for an equality, or the number of values for an $in.
func idLookupRows(filter bson.D) int {
	for _, e := range filter {
		if e.Key != "_id" {
			continue
		}
		if d, ok := e.Value.(bson.D); ok && len(d) == 1 && d[0].Key == "$in" {
			if arr, ok := d[0].Value.(bson.A); ok {
				return len(arr)
			}
		}
		return 1
	}
	return 1
}

// Route analyzes req and decides which backend should serve it, applying
// the heuristics in fixed order: explicit override, then auto-routing
// disabled, then heavy aggregation, then id lookup, then time range,
// then row-count estimate.
func Route(req Request, cfg Config) Decision {
	qc := Analyze(req, cfg)

	if req.Override != "" {
		backend := req.Override
		if !configured(backend, cfg) {
			return Decision{Backend: OLTP, Characteristics: qc,
				Reason: "explicit override to an unconfigured backend fell back to OLTP"}
		}
		return Decision{Backend: backend, Characteristics: qc,
			Reason: "explicit override"}
	}

	if !cfg.AutoRoutingEnabled {
		return Decision{Backend: OLTP, Characteristics: qc, Reason: "auto-routing disabled"}
	}

	if qc.HasHeavyAggregation {
		return withFallback(OLAP, cfg, qc,
			"Heavy aggregation stage(s): "+strings.Join(qc.OlapStages, ", "))
	}

	if qc.HasIDLookup {
		return Decision{Backend: OLTP, Characteristics: qc, Reason: "point id lookup on _id"}
	}

	if qc.IsTimeRangeQuery {
		return withFallback(OLAP, cfg, qc, "time-range predicate on a recognized timestamp field")
	}

	if qc.EstimatedRows >= cfg.RowThreshold {
		return withFallback(OLAP, cfg, qc, "estimated row count meets the OLAP threshold")
	}

	if cfg.PreferOlapForAggregations && req.Op == OpAggregate {
		return withFallback(OLAP, cfg, qc, "preferOlapForAggregations")
	}

	return Decision{Backend: OLTP, Characteristics: qc, Reason: "no heuristic matched"}
}

func withFallback(backend Backend, cfg Config, qc QueryCharacteristics, reason string) Decision {
	if !configured(backend, cfg) {
		return Decision{Backend: OLTP, Characteristics: qc,
			Reason: reason + " (OLAP not configured, fell back to OLTP)"}
	}
	return Decision{Backend: backend, Characteristics: qc, Reason: reason}
}

func configured(backend Backend, cfg Config) bool {
	switch backend {
	case OLAP:
		return cfg.OLAPConfigured
	default:
		return cfg.OLTPConfigured
	}
}

func estimateRows(req Request, cfg Config) int {
	for _, stage := range req.Pipeline {
		if len(stage) == 1 && stage[0].Key == "$limit" {
			if n, ok := asInt(stage[0].Value); ok {
				return n
			}
		}
	}
	if req.Limit > 0 {
		return req.Limit
	}
	return unboundedScanEstimate
}

// hasIDLookup reports whether filter is a point lookup on _id: an
// equality (bare value or {$eq: v}) or an {$in: [...]} with at most 100
// values.
func hasIDLookup(filter bson.D) bool {
	for _, e := range filter {
		if e.Key != "_id" {
			continue
		}
		if d, ok := e.Value.(bson.D); ok {
			if len(d) != 1 {
				return false
			}
			switch d[0].Key {
			case "$eq":
				return true
			case "$in":
				if arr, ok := d[0].Value.(bson.A); ok {
					return len(arr) <= 100
				}
				return false
			default:
				return false
			}
		}
		return true
	}
	return false
}

var rangeOperators = map[string]bool{"$gt": true, "$gte": true, "$lt": true, "$lte": true}

// hasTimeRangePredicate reports whether filter constrains a recognized
// timestamp field with a $gt/$gte/$lt/$lte operator.
func hasTimeRangePredicate(filter bson.D) bool {
	for _, e := range filter {
		if !timeRangeFields[e.Key] {
			continue
		}
		d, ok := e.Value.(bson.D)
		if !ok {
			continue
		}
		for _, op := range d {
			if rangeOperators[op.Key] {
				return true
			}
		}
	}
	return false
}

func sampleSize(v interface{}) (int, bool) {
	d, ok := v.(bson.D)
	if !ok {
		return 0, false
	}
	for _, e := range d {
		if e.Key == "size" {
			return asInt(e.Value)
		}
	}
	return 0, false
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// Key produces a stable cache key for req, for use with a Decision cache:
// identical filter/pipeline shape (and op/override) always yields the same
// key. Key order inside each bson.D is kept, so the same fields in a
// different order yield a different key.
func Key(req Request) string {
	var sb strings.Builder
	sb.WriteString(opName(req.Op))
	sb.WriteByte('|')
	sb.WriteString(string(req.Override))
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(req.Limit))
	sb.WriteByte('|')
	sb.WriteString(gmqb.CompactJSONOf(req.Filter))
	sb.WriteByte('|')
	sb.WriteString(gmqb.PipelineCompactJSONOf(req.Pipeline))
	return sb.String()
}

func opName(op OpKind) string {
	switch op {
	case OpAggregate:
		return "aggregate"
	case OpCount:
		return "count"
	case OpDistinct:
		return "distinct"
	default:
		return "find"
	}
}
