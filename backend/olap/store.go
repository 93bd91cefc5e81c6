// Package olap implements backend.Backend as an in-memory columnar store:
// each collection holds one append-only slice per field plus a tombstone
// bitset, instead of one row-per-key layout. A collection scan walks rows by
// index and reassembles a bson.D on demand, so aggregation stages and the
// filter matcher see the same document shape the OLTP backend produces;
// only the storage layout underneath differs.
package olap

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	gmqb "github.com/squall-chua/mongofacade"
	"github.com/squall-chua/mongofacade/backend"
	"github.com/squall-chua/mongofacade/cursor"
)

// absent marks a row's slot in a field's column as "this field was never
// set on this row", distinct from an explicit BSON null, which is stored
// as a plain nil interface value like everywhere else in this module.
var absent = new(struct{})

// collection is one column-store table: rowCount rows, one column per field
// that has ever been set on any row (padded with absent for rows that
// predate the field or never set it), and a tombstone bitset for deletes
// (rows are never physically compacted: a real columnar store's delete is
// a tombstone, not a compaction, since compaction is a background job of
// its own).
type collection struct {
	fieldOrder []string
	columns    map[string][]interface{}
	idIndex    map[string]int // gmqb.CompactJSONOf(_id) -> row index
	deleted    []bool
	rowCount   int
	indexes    []backend.IndexSpec
}

func newCollection() *collection {
	return &collection{columns: map[string][]interface{}{}, idIndex: map[string]int{}}
}

func (c *collection) ensureColumn(field string) []interface{} {
	col, ok := c.columns[field]
	if !ok {
		col = make([]interface{}, c.rowCount)
		for i := range col {
			col[i] = absent
		}
		c.columns[field] = col
		c.fieldOrder = append(c.fieldOrder, field)
	}
	return col
}

// appendRow writes doc as a new row, extending every existing column by one
// slot (absent unless doc sets that field) and creating a fresh column for
// any field doc introduces for the first time (backfilled with absent for
// every prior row).
func (c *collection) appendRow(doc bson.D) int {
	row := c.rowCount
	c.rowCount++
	for field, col := range c.columns {
		c.columns[field] = append(col, absent)
	}
	for _, e := range doc {
		col := c.ensureColumn(e.Key)
		for len(col) <= row {
			col = append(col, absent)
		}
		col[row] = e.Value
		c.columns[e.Key] = col
	}
	c.deleted = append(c.deleted, false)
	return row
}

// rowAt reassembles row i into a bson.D, in first-seen field order, skipping
// absent slots.
func (c *collection) rowAt(i int) bson.D {
	var doc bson.D
	for _, field := range c.fieldOrder {
		v := c.columns[field][i]
		if v == absent {
			continue
		}
		doc = append(doc, bson.E{Key: field, Value: v})
	}
	return doc
}

func (c *collection) liveRows() []bson.D {
	docs := make([]bson.D, 0, c.rowCount)
	for i := 0; i < c.rowCount; i++ {
		if c.deleted[i] {
			continue
		}
		docs = append(docs, c.rowAt(i))
	}
	return docs
}

func (c *collection) setRow(i int, doc bson.D) {
	for field := range c.columns {
		c.columns[field][i] = absent
	}
	for _, e := range doc {
		col := c.ensureColumn(e.Key)
		col[i] = e.Value
	}
}

func idKey(id interface{}) string {
	return gmqb.CompactJSONOf(bson.D{{Key: "_id", Value: id}})
}

func idOf(doc bson.D) (interface{}, bool) {
	v := gmqb.Get(doc, "_id")
	if gmqb.IsMissing(v) {
		return nil, false
	}
	return v, true
}

// Store is the OLAP engine: a columnar, in-memory store with no external
// dependency, meant for the router's analytical-shaped reads (heavy
// aggregations, time-range scans, large row estimates) rather than
// point-lookup OLTP traffic.
type Store struct {
	mu    sync.RWMutex
	dbs   map[string]map[string]*collection // db -> coll -> collection
	order map[string][]string               // db -> collection names, insertion order

	registry *cursor.Registry
}

// New builds an empty in-memory Store.
func New() *Store {
	return &Store{
		dbs:      map[string]map[string]*collection{},
		order:    map[string][]string{},
		registry: cursor.NewDefaultRegistry(),
	}
}

func (s *Store) ensureDB(db string) map[string]*collection {
	colls, ok := s.dbs[db]
	if !ok {
		colls = map[string]*collection{}
		s.dbs[db] = colls
	}
	return colls
}

func (s *Store) ensureCollection(db, coll string) *collection {
	colls := s.ensureDB(db)
	c, ok := colls[coll]
	if !ok {
		c = newCollection()
		colls[coll] = c
		s.order[db] = append(s.order[db], coll)
	}
	return c
}

func (s *Store) ListDatabases(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.dbs))
	for db := range s.dbs {
		names = append(names, db)
	}
	return names, nil
}

func (s *Store) CreateDatabase(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureDB(name)
	return nil
}

func (s *Store) DropDatabase(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dbs, name)
	delete(s.order, name)
	return nil
}

func (s *Store) DatabaseExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dbs[name]
	return ok, nil
}

func (s *Store) ListCollections(ctx context.Context, db string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]string{}, s.order[db]...)
	return out, nil
}

func (s *Store) CreateCollection(ctx context.Context, db, coll string, opts backend.CollectionOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureCollection(db, coll)
	return nil
}

func (s *Store) DropCollection(ctx context.Context, db, coll string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if colls, ok := s.dbs[db]; ok {
		delete(colls, coll)
	}
	names := s.order[db][:0]
	for _, c := range s.order[db] {
		if c != coll {
			names = append(names, c)
		}
	}
	s.order[db] = names
	return nil
}

func (s *Store) CollectionExists(ctx context.Context, db, coll string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dbs[db][coll]
	return ok, nil
}

func (s *Store) CollStats(ctx context.Context, db, coll string) (backend.CollStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := backend.CollStats{Collection: coll}
	c, ok := s.dbs[db][coll]
	if !ok {
		return stats, nil
	}
	for i := 0; i < c.rowCount; i++ {
		if !c.deleted[i] {
			stats.Count++
		}
	}
	stats.SizeBytes = int64(len(c.fieldOrder)) * int64(c.rowCount) * 16
	return stats, nil
}

func (s *Store) DBStats(ctx context.Context, db string) (backend.DBStats, error) {
	colls, err := s.ListCollections(ctx, db)
	if err != nil {
		return backend.DBStats{}, err
	}
	stats := backend.DBStats{Database: db, Collections: len(colls)}
	for _, name := range colls {
		cs, err := s.CollStats(ctx, db, name)
		if err != nil {
			return backend.DBStats{}, err
		}
		stats.SizeBytes += cs.SizeBytes
	}
	return stats, nil
}

func filterMatching(docs []bson.D, filter bson.D) []bson.D {
	if len(filter) == 0 {
		return docs
	}
	out := make([]bson.D, 0, len(docs))
	for _, d := range docs {
		if gmqb.Matches(filter, d) {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) buildCursor(db, coll string, filter bson.D) *cursor.Cursor {
	return cursor.New(db, coll, func(ctx context.Context) ([]bson.D, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		c, ok := s.dbs[db][coll]
		if !ok {
			return nil, nil
		}
		return filterMatching(c.liveRows(), filter), nil
	})
}

func applyModifiers(cur *cursor.Cursor, opts backend.FindOptions) (*cursor.Cursor, error) {
	var err error
	if len(opts.Sort) > 0 {
		if cur, err = cur.Sort(opts.Sort); err != nil {
			return nil, err
		}
	}
	if opts.Skip > 0 {
		if cur, err = cur.Skip(opts.Skip); err != nil {
			return nil, err
		}
	}
	if opts.Limit > 0 {
		if cur, err = cur.Limit(opts.Limit); err != nil {
			return nil, err
		}
	}
	if len(opts.Projection) > 0 {
		if cur, err = cur.Project(opts.Projection); err != nil {
			return nil, err
		}
	}
	if opts.BatchSize > 0 {
		if cur, err = cur.BatchSize(opts.BatchSize); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func (s *Store) Find(ctx context.Context, db, coll string, opts backend.FindOptions) (backend.FindResult, error) {
	cur := s.buildCursor(db, coll, opts.Filter)
	cur, err := applyModifiers(cur, opts)
	if err != nil {
		return backend.FindResult{}, err
	}
	docs, err := cur.ToArray(ctx)
	if err != nil {
		return backend.FindResult{}, err
	}
	_ = cur.Close()
	return backend.FindResult{Documents: docs}, nil
}

func (s *Store) insertOne(db, coll string, doc bson.D) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensureCollection(db, coll)
	id, ok := idOf(doc)
	if !ok {
		id = bson.NewObjectID()
		doc = append(bson.D{{Key: "_id", Value: id}}, doc...)
	}
	key := idKey(id)
	if _, exists := c.idIndex[key]; exists {
		return nil, gmqb.NewError(gmqb.KindWriteConcern, gmqb.ErrDuplicateID, "insert into %s.%s", db, coll)
	}
	row := c.appendRow(doc)
	c.idIndex[key] = row
	return id, nil
}

func (s *Store) InsertOne(ctx context.Context, db, coll string, doc bson.D) (interface{}, error) {
	return s.insertOne(db, coll, doc)
}

func (s *Store) InsertMany(ctx context.Context, db, coll string, docs []bson.D) ([]interface{}, error) {
	ids := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		id, err := s.insertOne(db, coll, d)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedFromFilter(filter bson.D) bson.D {
	var seed bson.D
	for _, e := range filter {
		if _, isDoc := e.Value.(bson.D); isDoc {
			continue
		}
		seed = append(seed, e)
	}
	return seed
}

func (s *Store) updateMatching(ctx context.Context, db, coll string, filter, update bson.D, upsert, many bool) (backend.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensureCollection(db, coll)
	var result backend.UpdateResult
	for i := 0; i < c.rowCount; i++ {
		if c.deleted[i] {
			continue
		}
		doc := c.rowAt(i)
		if !gmqb.Matches(filter, doc) {
			continue
		}
		result.MatchedCount++
		updated, changed, err := gmqb.Apply(update, doc, false)
		if err != nil {
			return backend.UpdateResult{}, err
		}
		if changed {
			c.setRow(i, updated)
			result.ModifiedCount++
		}
		if !many {
			return result, nil
		}
	}
	if result.MatchedCount == 0 && upsert {
		seed := seedFromFilter(filter)
		inserted, _, err := gmqb.Apply(update, seed, true)
		if err != nil {
			return backend.UpdateResult{}, err
		}
		id, ok := idOf(inserted)
		if !ok {
			id = bson.NewObjectID()
			inserted = append(bson.D{{Key: "_id", Value: id}}, inserted...)
		}
		row := c.appendRow(inserted)
		c.idIndex[idKey(id)] = row
		result.UpsertedID = id
	}
	return result, nil
}

func (s *Store) UpdateOne(ctx context.Context, db, coll string, filter, update bson.D, upsert bool) (backend.UpdateResult, error) {
	return s.updateMatching(ctx, db, coll, filter, update, upsert, false)
}

func (s *Store) UpdateMany(ctx context.Context, db, coll string, filter, update bson.D, upsert bool) (backend.UpdateResult, error) {
	return s.updateMatching(ctx, db, coll, filter, update, upsert, true)
}

func (s *Store) deleteMatching(ctx context.Context, db, coll string, filter bson.D, many bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	colls, ok := s.dbs[db]
	if !ok {
		return 0, nil
	}
	c, ok := colls[coll]
	if !ok {
		return 0, nil
	}
	var n int64
	for i := 0; i < c.rowCount; i++ {
		if c.deleted[i] {
			continue
		}
		doc := c.rowAt(i)
		if !gmqb.Matches(filter, doc) {
			continue
		}
		c.deleted[i] = true
		if id, ok := idOf(doc); ok {
			delete(c.idIndex, idKey(id))
		}
		n++
		if !many {
			break
		}
	}
	return n, nil
}

func (s *Store) DeleteOne(ctx context.Context, db, coll string, filter bson.D) (int64, error) {
	return s.deleteMatching(ctx, db, coll, filter, false)
}

func (s *Store) DeleteMany(ctx context.Context, db, coll string, filter bson.D) (int64, error) {
	return s.deleteMatching(ctx, db, coll, filter, true)
}

func (s *Store) Count(ctx context.Context, db, coll string, filter bson.D) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.dbs[db][coll]
	if !ok {
		return 0, nil
	}
	return int64(len(filterMatching(c.liveRows(), filter))), nil
}

// Distinct takes the field's values from its column; only a non-empty
// filter makes it reassemble each live row (via rowAt) to evaluate the
// filter against. It is the one place in this store that actually
// takes advantage of the columnar layout instead of just mirroring the row
// store's algorithm over a different storage shape.
func (s *Store) Distinct(ctx context.Context, db, coll, field string, filter bson.D) ([]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.dbs[db][coll]
	if !ok {
		return nil, nil
	}
	col, hasColumn := c.columns[field]
	seen := map[string]bool{}
	var out []interface{}
	for i := 0; i < c.rowCount; i++ {
		if c.deleted[i] {
			continue
		}
		if len(filter) > 0 && !gmqb.Matches(filter, c.rowAt(i)) {
			continue
		}
		if !hasColumn {
			continue
		}
		v := col[i]
		if v == absent {
			continue
		}
		key := fmt.Sprintf("%T:%v", v, v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) Aggregate(ctx context.Context, db, coll string, pipeline []bson.D) ([]bson.D, error) {
	s.mu.RLock()
	var docs []bson.D
	if c, ok := s.dbs[db][coll]; ok {
		docs = c.liveRows()
	}
	s.mu.RUnlock()
	return gmqb.RunPipeline(ctx, pipeline, docs, gmqb.Env{Lookup: storeLookup{s}, DB: db})
}

// storeLookup lets a pipeline's $lookup stages read sibling collections out
// of the same Store that is running the aggregation.
type storeLookup struct {
	s *Store
}

func (l storeLookup) Lookup(ctx context.Context, db, collection string, _ []bson.D) ([]bson.D, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	c, ok := l.s.dbs[db][collection]
	if !ok {
		return nil, nil
	}
	return c.liveRows(), nil
}

func (s *Store) ListIndexes(ctx context.Context, db, coll string) ([]backend.IndexSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.dbs[db][coll]
	if !ok {
		return nil, nil
	}
	return append([]backend.IndexSpec{}, c.indexes...), nil
}

// CreateIndexes is declarative bookkeeping here too: every read already
// scans the column set directly rather than using a secondary index to
// narrow it. Recording the spec keeps listIndexes/createIndexes consistent
// for a caller that round-trips them.
func (s *Store) CreateIndexes(ctx context.Context, db, coll string, specs []backend.IndexSpec) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensureCollection(db, coll)
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			spec.Name = indexName(spec.Keys)
		}
		c.indexes = append(c.indexes, spec)
		names = append(names, spec.Name)
	}
	return names, nil
}

func indexName(keys bson.D) string {
	name := ""
	for _, e := range keys {
		if name != "" {
			name += "_"
		}
		name += fmt.Sprintf("%s_%v", e.Key, e.Value)
	}
	if name == "" {
		name = "_index_"
	}
	return name
}

func (s *Store) DropIndex(ctx context.Context, db, coll, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.dbs[db][coll]
	if !ok {
		return nil
	}
	out := c.indexes[:0]
	for _, spec := range c.indexes {
		if spec.Name != name {
			out = append(out, spec)
		}
	}
	c.indexes = out
	return nil
}

func (s *Store) DropIndexes(ctx context.Context, db, coll string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.dbs[db][coll]; ok {
		c.indexes = nil
	}
	return nil
}

func (s *Store) CreateCursor(ctx context.Context, db, coll string, opts backend.FindOptions) (string, error) {
	cur := s.buildCursor(db, coll, opts.Filter)
	cur, err := applyModifiers(cur, opts)
	if err != nil {
		return "", err
	}
	s.registry.Register(cur)
	return cur.ID(), nil
}

func (s *Store) GetCursor(ctx context.Context, id string) (*cursor.Cursor, bool) {
	return s.registry.Get(id)
}

func (s *Store) AdvanceCursor(ctx context.Context, id string, batchSize int) (backend.FindResult, error) {
	cur, ok := s.registry.Get(id)
	if !ok {
		return backend.FindResult{}, gmqb.NewError(gmqb.KindInvalidArgument, nil, "unknown cursor %q", id)
	}
	if batchSize <= 0 {
		batchSize = 101
	}
	var docs []bson.D
	for len(docs) < batchSize {
		doc, ok, err := cur.Next(ctx)
		if err != nil {
			return backend.FindResult{}, err
		}
		if !ok {
			break
		}
		docs = append(docs, doc)
	}
	hasMore := false
	if !cur.Closed() {
		hn, err := cur.HasNext(ctx)
		if err != nil {
			return backend.FindResult{}, err
		}
		hasMore = hn
	}
	return backend.FindResult{Documents: docs, CursorID: id, HasMore: hasMore}, nil
}

func (s *Store) CloseCursor(ctx context.Context, id string) error {
	return s.registry.Close(id)
}

func (s *Store) CleanupExpiredCursors(ctx context.Context) error {
	return nil
}

var _ backend.Backend = (*Store)(nil)
