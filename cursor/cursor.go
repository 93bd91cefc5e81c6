// Package cursor implements the lazy iteration handle returned by find and
// aggregate operations: buffered consumption, modifier chaining (limit,
// skip, sort, project, batchSize), and the created/fetched/closed lifecycle.
//
// See: https://www.mongodb.com/docs/manual/tutorial/iterate-a-cursor/
package cursor

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	gmqb "github.com/squall-chua/mongofacade"
)

// defaultBatchSize mirrors the real wire protocol's first-batch default.
const defaultBatchSize = 101

// FetchFunc performs a one-shot fetch of the entire matching result set.
// Used in full-fetch mode, where the cursor applies sort/skip/limit/
// projection itself once the documents are in hand.
type FetchFunc func(ctx context.Context) ([]bson.D, error)

// StreamFetchFunc fetches the next batch of up to batchSize documents and
// reports whether more remain. In streaming mode the backend is expected to
// have already applied sort/skip/limit; the cursor only applies projection.
type StreamFetchFunc func(ctx context.Context, batchSize int) (docs []bson.D, hasMore bool, err error)

// state is the shared, mutable core a Cursor and any views derived from it
// via Map share: one fetch pipeline, one buffer, one read position. Map
// returns a new *Cursor pointing at the same state so that consuming
// through either view advances the same underlying sequence.
type state struct {
	mu sync.Mutex

	db, coll string

	fetch       FetchFunc
	streamFetch StreamFetchFunc
	streaming   bool

	pred func(bson.D) bool

	limit, skip, batchSize int
	hasLimit, hasSkip      bool
	sortSpec, projSpec     bson.D

	buf []bson.D
	pos int

	dispensed int
	started   bool
	exhausted bool
	closed    bool
}

// Cursor is a view over a result sequence. The zero value is not usable;
// construct one with New or NewStreaming.
type Cursor struct {
	id    string
	st    *state
	mapFn func(doc bson.D, index int) bson.D
}

// New constructs a full-fetch cursor: fetch is called once, on first
// consumption, and the entire result set is materialized client-side.
func New(db, coll string, fetch FetchFunc) *Cursor {
	return &Cursor{
		id: uuid.NewString(),
		st: &state{db: db, coll: coll, fetch: fetch, batchSize: defaultBatchSize},
	}
}

// NewStreaming constructs a streaming cursor: fetch is called repeatedly,
// once per batch, with the backend responsible for applying sort/skip/limit.
func NewStreaming(db, coll string, fetch StreamFetchFunc) *Cursor {
	return &Cursor{
		id: uuid.NewString(),
		st: &state{db: db, coll: coll, streamFetch: fetch, streaming: true, batchSize: defaultBatchSize},
	}
}

// ID returns the cursor's registry identity.
func (c *Cursor) ID() string { return c.id }

// DB returns the owning database name.
func (c *Cursor) DB() string { return c.st.db }

// Collection returns the owning collection name.
func (c *Cursor) Collection() string { return c.st.coll }

func (s *state) checkModifiableLocked() error {
	if s.closed {
		return &gmqb.Error{Kind: gmqb.KindInvalidOperation, Message: "cursor closed", Cause: gmqb.ErrCursorClosed}
	}
	if s.started {
		return &gmqb.Error{Kind: gmqb.KindInvalidOperation, Message: "cannot modify cursor after the first fetch"}
	}
	return nil
}

// Limit sets the maximum number of documents the cursor will dispense.
// Must be called before the first fetch; a negative n fails.
func (c *Cursor) Limit(n int) (*Cursor, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if err := c.st.checkModifiableLocked(); err != nil {
		return c, err
	}
	if n < 0 {
		return c, &gmqb.Error{Kind: gmqb.KindInvalidArgument, Message: "limit must be non-negative", Cause: gmqb.ErrNegativeArg}
	}
	c.st.limit = n
	c.st.hasLimit = true
	return c, nil
}

// Skip sets the number of leading matched documents to discard. Must be
// called before the first fetch; a negative n fails.
func (c *Cursor) Skip(n int) (*Cursor, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if err := c.st.checkModifiableLocked(); err != nil {
		return c, err
	}
	if n < 0 {
		return c, &gmqb.Error{Kind: gmqb.KindInvalidArgument, Message: "skip must be non-negative", Cause: gmqb.ErrNegativeArg}
	}
	c.st.skip = n
	c.st.hasSkip = true
	return c, nil
}

// Sort sets the client-side (full-fetch mode) or informational (streaming
// mode, where the backend already sorted) ordering spec.
func (c *Cursor) Sort(spec bson.D) (*Cursor, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if err := c.st.checkModifiableLocked(); err != nil {
		return c, err
	}
	c.st.sortSpec = spec
	return c, nil
}

// Project sets the field-inclusion/exclusion spec applied to every
// dispensed document, in both execution modes.
func (c *Cursor) Project(spec bson.D) (*Cursor, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if err := c.st.checkModifiableLocked(); err != nil {
		return c, err
	}
	c.st.projSpec = spec
	return c, nil
}

// BatchSize sets the batch size requested from a streaming backend.
// Must be at least 1.
func (c *Cursor) BatchSize(n int) (*Cursor, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if err := c.st.checkModifiableLocked(); err != nil {
		return c, err
	}
	if n < 1 {
		return c, &gmqb.Error{Kind: gmqb.KindInvalidArgument, Message: "batchSize must be at least 1"}
	}
	c.st.batchSize = n
	return c, nil
}

// Filter composes pred into the backing fetch pipeline: it is applied to
// each fetched batch before any client-side sort/skip/limit/projection, for
// every view sharing this cursor's state. Must be called before the first
// fetch.
func (c *Cursor) Filter(pred func(doc bson.D) bool) (*Cursor, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if err := c.st.checkModifiableLocked(); err != nil {
		return c, err
	}
	if prev := c.st.pred; prev != nil {
		c.st.pred = func(d bson.D) bool { return prev(d) && pred(d) }
	} else {
		c.st.pred = pred
	}
	return c, nil
}

// Map returns a new view over the same underlying fetch and buffer that
// applies fn to every document as it is dispensed. Consuming through either
// view advances the same shared read position; it inherits buffer and
// options rather than re-running the fetch.
func (c *Cursor) Map(fn func(doc bson.D, index int) bson.D) *Cursor {
	composed := fn
	if prev := c.mapFn; prev != nil {
		composed = func(doc bson.D, idx int) bson.D { return fn(prev(doc, idx), idx) }
	}
	return &Cursor{id: c.id, st: c.st, mapFn: composed}
}

// fill ensures at least one more document is available in the buffer, or
// confirms exhaustion, performing I/O only on the first such call (lazy
// per the created state) or, in streaming mode, whenever the buffer runs
// dry and the backend has more.
func (s *state) fill(ctx context.Context) error {
	if s.pos < len(s.buf) {
		return nil
	}
	if s.exhausted {
		return nil
	}
	s.started = true
	if s.pos > 0 {
		s.buf = s.buf[s.pos:]
		s.pos = 0
	}

	if s.streaming {
		batch := s.batchSize
		if batch <= 0 {
			batch = defaultBatchSize
		}
		docs, hasMore, err := s.streamFetch(ctx, batch)
		if err != nil {
			return &gmqb.Error{Kind: gmqb.KindInternal, Message: "cursor stream fetch failed", Cause: err}
		}
		if s.pred != nil {
			docs = filterDocs(docs, s.pred)
		}
		if len(s.projSpec) > 0 {
			docs = projectDocs(docs, s.projSpec)
		}
		s.buf = append(s.buf, docs...)
		if !hasMore {
			s.exhausted = true
		}
		return nil
	}

	docs, err := s.fetch(ctx)
	if err != nil {
		return &gmqb.Error{Kind: gmqb.KindInternal, Message: "cursor fetch failed", Cause: err}
	}
	if s.pred != nil {
		docs = filterDocs(docs, s.pred)
	}
	if len(s.sortSpec) > 0 {
		docs = sortDocs(docs, s.sortSpec)
	}
	if s.hasSkip && s.skip > 0 {
		if s.skip >= len(docs) {
			docs = nil
		} else {
			docs = docs[s.skip:]
		}
	}
	if s.hasLimit && s.limit < len(docs) {
		docs = docs[:s.limit]
	}
	if len(s.projSpec) > 0 {
		docs = projectDocs(docs, s.projSpec)
	}
	s.buf = docs
	s.exhausted = true
	return nil
}

// Next dispenses the next document, or ok=false once the cursor is
// exhausted. A fetch error closes the cursor before propagating.
func (c *Cursor) Next(ctx context.Context) (bson.D, bool, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if c.st.closed {
		return nil, false, &gmqb.Error{Kind: gmqb.KindInvalidOperation, Message: "cursor closed", Cause: gmqb.ErrCursorClosed}
	}
	if err := c.st.fill(ctx); err != nil {
		c.st.closed = true
		return nil, false, err
	}
	if c.st.pos >= len(c.st.buf) {
		return nil, false, nil
	}
	doc := c.st.buf[c.st.pos]
	idx := c.st.dispensed
	c.st.pos++
	c.st.dispensed++
	if c.mapFn != nil {
		doc = c.mapFn(doc, idx)
	}
	return doc, true, nil
}

// HasNext reports whether a subsequent Next call would return a document,
// triggering a fetch if none has happened yet.
func (c *Cursor) HasNext(ctx context.Context) (bool, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if c.st.closed {
		return false, &gmqb.Error{Kind: gmqb.KindInvalidOperation, Message: "cursor closed", Cause: gmqb.ErrCursorClosed}
	}
	if err := c.st.fill(ctx); err != nil {
		c.st.closed = true
		return false, err
	}
	return c.st.pos < len(c.st.buf), nil
}

// ToArray drains the cursor into a slice. It does not close the cursor.
func (c *Cursor) ToArray(ctx context.Context) ([]bson.D, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if c.st.closed {
		return nil, &gmqb.Error{Kind: gmqb.KindInvalidOperation, Message: "cursor closed", Cause: gmqb.ErrCursorClosed}
	}
	var out []bson.D
	for {
		if err := c.st.fill(ctx); err != nil {
			c.st.closed = true
			return nil, err
		}
		if c.st.pos >= len(c.st.buf) {
			return out, nil
		}
		for c.st.pos < len(c.st.buf) {
			doc := c.st.buf[c.st.pos]
			idx := c.st.dispensed
			c.st.pos++
			c.st.dispensed++
			if c.mapFn != nil {
				doc = c.mapFn(doc, idx)
			}
			out = append(out, doc)
		}
	}
}

// ForEach iterates, calling cb with each document and its dispense index.
// If cb returns cont=false or an error, iteration stops without closing the
// cursor. Exhaustion leaves it open too; only a failed fetch of the next
// document closes it (via Next).
func (c *Cursor) ForEach(ctx context.Context, cb func(doc bson.D, index int) (cont bool, err error)) error {
	idx := 0
	for {
		doc, ok, err := c.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cont, err := cb(doc, idx)
		idx++
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// Count reports the number of documents remaining in the current
// materialization (already fetched but not yet dispensed), triggering a
// fetch if none has happened yet.
func (c *Cursor) Count(ctx context.Context) (int, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if c.st.closed {
		return 0, &gmqb.Error{Kind: gmqb.KindInvalidOperation, Message: "cursor closed", Cause: gmqb.ErrCursorClosed}
	}
	if err := c.st.fill(ctx); err != nil {
		c.st.closed = true
		return 0, err
	}
	return len(c.st.buf) - c.st.pos, nil
}

// Close releases the cursor. Idempotent.
func (c *Cursor) Close() error {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	c.st.closed = true
	return nil
}

// Closed reports whether the cursor has been closed.
func (c *Cursor) Closed() bool {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	return c.st.closed
}

// Clone returns a fresh, unfetched cursor with the same namespace, fetch
// pipeline, and modifiers, but its own identity and read position.
func (c *Cursor) Clone() *Cursor {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	return &Cursor{
		id: uuid.NewString(),
		st: &state{
			db: c.st.db, coll: c.st.coll,
			fetch: c.st.fetch, streamFetch: c.st.streamFetch, streaming: c.st.streaming,
			pred:      c.st.pred,
			limit:     c.st.limit, hasLimit: c.st.hasLimit,
			skip:      c.st.skip, hasSkip: c.st.hasSkip,
			batchSize: c.st.batchSize,
			sortSpec:  append(bson.D{}, c.st.sortSpec...),
			projSpec:  append(bson.D{}, c.st.projSpec...),
		},
	}
}

// Rewind re-enters the created state from closed or exhausted, for a
// full-fetch cursor only: a streaming backend's server-side offset cannot
// be rewound from here.
func (c *Cursor) Rewind() error {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if c.st.streaming {
		return &gmqb.Error{Kind: gmqb.KindInvalidOperation, Message: "rewind is not supported for a streaming backend cursor"}
	}
	if !c.st.closed && !c.st.exhausted {
		return &gmqb.Error{Kind: gmqb.KindInvalidOperation, Message: "rewind requires a closed or exhausted cursor"}
	}
	c.st.closed = false
	c.st.started = false
	c.st.exhausted = false
	c.st.buf = nil
	c.st.pos = 0
	c.st.dispensed = 0
	return nil
}

// All returns a range-over-func iterator dispensing each remaining
// document in turn. The cursor is closed both when the sequence drains
// and when the consuming loop exits early (break/return), mirroring the
// async-iterable close guarantee.
func (c *Cursor) All(ctx context.Context) iter.Seq[bson.D] {
	return func(yield func(bson.D) bool) {
		defer c.Close()
		for {
			doc, ok, err := c.Next(ctx)
			if err != nil || !ok {
				return
			}
			if !yield(doc) {
				return
			}
		}
	}
}

func filterDocs(docs []bson.D, pred func(bson.D) bool) []bson.D {
	out := make([]bson.D, 0, len(docs))
	for _, d := range docs {
		if pred(d) {
			out = append(out, d)
		}
	}
	return out
}

// sortDocs applies the same total order the aggregation interpreter's
// $sort stage uses, reimplemented here against the exported Value
// primitives since the cursor lives in its own package.
func sortDocs(docs []bson.D, spec bson.D) []bson.D {
	out := append([]bson.D{}, docs...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, rule := range spec {
			dir, _ := asFloat01(rule.Value)
			c := gmqb.Compare(gmqb.Get(out[i], rule.Key), gmqb.Get(out[j], rule.Key))
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

// projectDocs applies a plain inclusion/exclusion projection spec; the
// cursor's client-side projection is a field filter, not the full
// expression-evaluating $project aggregation stage.
func projectDocs(docs []bson.D, spec bson.D) []bson.D {
	includeMode := false
	idExcluded := false
	for _, e := range spec {
		if e.Key == "_id" {
			if n, ok := asFloat01(e.Value); ok && n == 0 {
				idExcluded = true
			}
			continue
		}
		if n, ok := asFloat01(e.Value); ok && n == 1 {
			includeMode = true
		}
	}

	out := make([]bson.D, len(docs))
	for i, d := range docs {
		if includeMode {
			proj := bson.D{}
			if !idExcluded {
				if v := gmqb.Get(d, "_id"); !gmqb.IsMissing(v) {
					proj = append(proj, bson.E{Key: "_id", Value: v})
				}
			}
			for _, e := range spec {
				if e.Key == "_id" {
					continue
				}
				if n, ok := asFloat01(e.Value); ok && n == 1 {
					if v := gmqb.Get(d, e.Key); !gmqb.IsMissing(v) {
						proj = append(proj, bson.E{Key: e.Key, Value: v})
					}
				}
			}
			out[i] = proj
			continue
		}

		proj := d
		if idExcluded {
			proj = gmqb.Unset(proj, "_id")
		}
		for _, e := range spec {
			if e.Key == "_id" {
				continue
			}
			if n, ok := asFloat01(e.Value); ok && n == 0 {
				proj = gmqb.Unset(proj, e.Key)
			}
		}
		out[i] = proj
	}
	return out
}

func asFloat01(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// defaultTTL and defaultCleanupInterval back NewDefaultRegistry; operators
// who need a different sweep cadence construct the Registry with
// NewRegistry directly.
const (
	defaultTTL             = 30 * time.Second
	defaultCleanupInterval = 30 * time.Second
)
