// Package oltp implements backend.Backend directly on top of Badger: one
// embedded, transactional key-value store serving every document write and
// point/range read. Every document lives under a deterministic
// db/collection/_id key, so a full collection scan is a single prefix
// iteration. Reads, lookups by _id included, run as such a scan with the
// filter applied in memory; only the duplicate-_id check on insert reads a
// single key.
package oltp

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"go.mongodb.org/mongo-driver/v2/bson"

	gmqb "github.com/squall-chua/mongofacade"
	"github.com/squall-chua/mongofacade/backend"
	"github.com/squall-chua/mongofacade/cursor"
)

// Meta keys live under a NUL-prefixed namespace so they can never collide
// with a document key, which always starts with a database name.
const (
	metaDBPrefix    = "\x00meta\x00db\x00"
	metaCollPrefix  = "\x00meta\x00coll\x00"
	metaIndexPrefix = "\x00meta\x00idx\x00"
)

// Store is the OLTP engine: a row store with one document per key, adapted
// from an embedded collection-prefixed key-value layout. Unlike that
// layout's global secondary index (a bare id -> primary key pointer, for
// looking a document up without knowing its collection), this Store never
// needs a cross-collection lookup: every call into it is already scoped to
// (database, collection), so the composite key alone serves both as
// storage key and as the _id index.
type Store struct {
	db       *badger.DB
	registry *cursor.Registry
}

// Open opens (or creates) a Badger-backed Store using opts.
func Open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, gmqb.NewError(gmqb.KindConnection, err, "opening oltp store")
	}
	return &Store{db: db, registry: cursor.NewDefaultRegistry()}, nil
}

// Close releases the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

func docKey(db, coll string, id interface{}) []byte {
	return []byte(db + "/" + coll + "/" + gmqb.CompactJSONOf(bson.D{{Key: "_id", Value: id}}))
}

func collPrefix(db, coll string) []byte {
	return []byte(db + "/" + coll + "/")
}

func dbPrefix(db string) []byte {
	return []byte(db + "/")
}

func collMetaKey(db, coll string) []byte {
	return []byte(metaCollPrefix + db + "\x00" + coll)
}

func dbMetaKey(db string) []byte {
	return []byte(metaDBPrefix + db)
}

// ensureRegistered marks (db, coll), and transitively db, as existing,
// the way a real Mongo creates a database/collection implicitly on first
// write rather than requiring an explicit createCollection call first.
func (s *Store) ensureRegistered(txn *badger.Txn, db, coll string) error {
	if err := txn.Set(dbMetaKey(db), []byte{1}); err != nil {
		return err
	}
	return txn.Set(collMetaKey(db, coll), []byte{1})
}

func marshalDoc(doc bson.D) ([]byte, error) {
	b, err := bson.Marshal(doc)
	if err != nil {
		return nil, gmqb.NewError(gmqb.KindInternal, err, "marshaling document")
	}
	return b, nil
}

func unmarshalDoc(b []byte) (bson.D, error) {
	var doc bson.D
	if err := bson.Unmarshal(b, &doc); err != nil {
		return nil, gmqb.NewError(gmqb.KindInternal, err, "unmarshaling document")
	}
	return doc, nil
}

// scanCollection returns every document stored under (db, coll), in key
// order, regardless of filter. Callers needing a filtered read apply
// gmqb.Matches themselves; this function is the one place that actually
// touches Badger's iterator.
func (s *Store) scanCollection(db, coll string) ([]bson.D, error) {
	var docs []bson.D
	prefix := collPrefix(db, coll)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var doc bson.D
			if err := item.Value(func(val []byte) error {
				d, err := unmarshalDoc(val)
				if err != nil {
					return err
				}
				doc = d
				return nil
			}); err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
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

func idOf(doc bson.D) (interface{}, bool) {
	v := gmqb.Get(doc, "_id")
	if gmqb.IsMissing(v) {
		return nil, false
	}
	return v, true
}

// ListDatabases reports every database that has had at least one
// createDatabase or implicit write against it.
func (s *Store) ListDatabases(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(metaDBPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			names = append(names, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return names, err
}

func (s *Store) CreateDatabase(ctx context.Context, name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbMetaKey(name), []byte{1})
	})
}

func (s *Store) DropDatabase(ctx context.Context, name string) error {
	colls, err := s.ListCollections(ctx, name)
	if err != nil {
		return err
	}
	for _, c := range colls {
		if err := s.DropCollection(ctx, name, c); err != nil {
			return err
		}
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dbMetaKey(name))
	})
}

func (s *Store) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(dbMetaKey(name)); err == nil {
			exists = true
			return nil
		}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := dbPrefix(name)
		it.Seek(prefix)
		exists = it.ValidForPrefix(prefix)
		return nil
	})
	return exists, err
}

func (s *Store) ListCollections(ctx context.Context, db string) ([]string, error) {
	seen := map[string]bool{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(metaCollPrefix + db + "\x00")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			seen[string(it.Item().Key()[len(prefix):])] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) CreateCollection(ctx context.Context, db, coll string, opts backend.CollectionOptions) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.ensureRegistered(txn, db, coll)
	})
}

func (s *Store) DropCollection(ctx context.Context, db, coll string) error {
	prefix := collPrefix(db, coll)
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, append([]byte{}, it.Item().Key()...))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		_ = txn.Delete(collMetaKey(db, coll))
		idxIt := txn.NewIterator(badger.DefaultIteratorOptions)
		idxPrefix := []byte(metaIndexPrefix + db + "\x00" + coll + "\x00")
		var idxKeys [][]byte
		for idxIt.Seek(idxPrefix); idxIt.ValidForPrefix(idxPrefix); idxIt.Next() {
			idxKeys = append(idxKeys, append([]byte{}, idxIt.Item().Key()...))
		}
		idxIt.Close()
		for _, k := range idxKeys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CollectionExists(ctx context.Context, db, coll string) (bool, error) {
	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(collMetaKey(db, coll)); err == nil {
			exists = true
			return nil
		}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := collPrefix(db, coll)
		it.Seek(prefix)
		exists = it.ValidForPrefix(prefix)
		return nil
	})
	return exists, err
}

func (s *Store) CollStats(ctx context.Context, db, coll string) (backend.CollStats, error) {
	stats := backend.CollStats{Collection: coll}
	prefix := collPrefix(db, coll)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stats.Count++
			stats.SizeBytes += it.Item().ValueSize()
		}
		return nil
	})
	return stats, err
}

func (s *Store) DBStats(ctx context.Context, db string) (backend.DBStats, error) {
	colls, err := s.ListCollections(ctx, db)
	if err != nil {
		return backend.DBStats{}, err
	}
	stats := backend.DBStats{Database: db, Collections: len(colls)}
	for _, c := range colls {
		cs, err := s.CollStats(ctx, db, c)
		if err != nil {
			return backend.DBStats{}, err
		}
		stats.SizeBytes += cs.SizeBytes
	}
	return stats, nil
}

// Find executes a filtered, full-fetch read: every matching document is
// pulled from Badger, then the cursor package applies sort, skip, limit,
// and projection client-side, in that order; the backend itself never
// pushes those down.
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

func (s *Store) buildCursor(db, coll string, filter bson.D) *cursor.Cursor {
	return cursor.New(db, coll, func(ctx context.Context) ([]bson.D, error) {
		docs, err := s.scanCollection(db, coll)
		if err != nil {
			return nil, err
		}
		return filterMatching(docs, filter), nil
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

func (s *Store) InsertOne(ctx context.Context, db, coll string, doc bson.D) (interface{}, error) {
	id, ok := idOf(doc)
	if !ok {
		id = bson.NewObjectID()
		doc = append(bson.D{{Key: "_id", Value: id}}, doc...)
	}
	key := docKey(db, coll, id)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return gmqb.NewError(gmqb.KindWriteConcern, gmqb.ErrDuplicateID, "insert into %s.%s", db, coll)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		val, err := marshalDoc(doc)
		if err != nil {
			return err
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return s.ensureRegistered(txn, db, coll)
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

func (s *Store) InsertMany(ctx context.Context, db, coll string, docs []bson.D) ([]interface{}, error) {
	ids := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		id, err := s.InsertOne(ctx, db, coll, d)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) updateMatching(ctx context.Context, db, coll string, filter, update bson.D, upsert, many bool) (backend.UpdateResult, error) {
	docs, err := s.scanCollection(db, coll)
	if err != nil {
		return backend.UpdateResult{}, err
	}
	var result backend.UpdateResult
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, d := range docs {
			if !gmqb.Matches(filter, d) {
				continue
			}
			result.MatchedCount++
			updated, changed, err := gmqb.Apply(update, d, false)
			if err != nil {
				return err
			}
			if changed {
				id, _ := idOf(updated)
				val, err := marshalDoc(updated)
				if err != nil {
					return err
				}
				if err := txn.Set(docKey(db, coll, id), val); err != nil {
					return err
				}
				result.ModifiedCount++
			}
			if !many {
				return nil
			}
		}
		if result.MatchedCount == 0 && upsert {
			seed := seedFromFilter(filter)
			inserted, changed, err := gmqb.Apply(update, seed, true)
			if err != nil {
				return err
			}
			_ = changed
			id, ok := idOf(inserted)
			if !ok {
				id = bson.NewObjectID()
				inserted = append(bson.D{{Key: "_id", Value: id}}, inserted...)
			}
			val, err := marshalDoc(inserted)
			if err != nil {
				return err
			}
			if err := txn.Set(docKey(db, coll, id), val); err != nil {
				return err
			}
			result.UpsertedID = id
			if err := s.ensureRegistered(txn, db, coll); err != nil {
				return err
			}
		}
		return nil
	})
	return result, err
}

// seedFromFilter builds the starting document an upsert's $setOnInsert and
// positional operators apply against: every top-level equality predicate in
// filter becomes a field on the seed, mirroring what a real upsert seeds
// from its query document.
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

func (s *Store) UpdateOne(ctx context.Context, db, coll string, filter, update bson.D, upsert bool) (backend.UpdateResult, error) {
	return s.updateMatching(ctx, db, coll, filter, update, upsert, false)
}

func (s *Store) UpdateMany(ctx context.Context, db, coll string, filter, update bson.D, upsert bool) (backend.UpdateResult, error) {
	return s.updateMatching(ctx, db, coll, filter, update, upsert, true)
}

func (s *Store) deleteMatching(ctx context.Context, db, coll string, filter bson.D, many bool) (int64, error) {
	docs, err := s.scanCollection(db, coll)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, d := range docs {
			if !gmqb.Matches(filter, d) {
				continue
			}
			id, _ := idOf(d)
			if err := txn.Delete(docKey(db, coll, id)); err != nil {
				return err
			}
			n++
			if !many {
				return nil
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) DeleteOne(ctx context.Context, db, coll string, filter bson.D) (int64, error) {
	return s.deleteMatching(ctx, db, coll, filter, false)
}

func (s *Store) DeleteMany(ctx context.Context, db, coll string, filter bson.D) (int64, error) {
	return s.deleteMatching(ctx, db, coll, filter, true)
}

func (s *Store) Count(ctx context.Context, db, coll string, filter bson.D) (int64, error) {
	docs, err := s.scanCollection(db, coll)
	if err != nil {
		return 0, err
	}
	return int64(len(filterMatching(docs, filter))), nil
}

func (s *Store) Distinct(ctx context.Context, db, coll, field string, filter bson.D) ([]interface{}, error) {
	docs, err := s.scanCollection(db, coll)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []interface{}
	for _, d := range filterMatching(docs, filter) {
		v := gmqb.Get(d, field)
		if gmqb.IsMissing(v) {
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
	docs, err := s.scanCollection(db, coll)
	if err != nil {
		return nil, err
	}
	return gmqb.RunPipeline(ctx, pipeline, docs, gmqb.Env{Lookup: storeLookup{s}, DB: db})
}

// storeLookup lets a pipeline's $lookup stages read sibling collections out
// of the same Store that is running the aggregation.
type storeLookup struct {
	s *Store
}

func (l storeLookup) Lookup(ctx context.Context, db, collection string, _ []bson.D) ([]bson.D, error) {
	return l.s.scanCollection(db, collection)
}

// ListIndexes, CreateIndexes, DropIndex, and DropIndexes are declarative
// bookkeeping only: every read in this Store already scans its full
// collection and filters in memory with gmqb.Matches, so there is no
// access path an index could actually accelerate. Recording them lets a
// driver's listIndexes/createIndexes calls round-trip correctly regardless.
func (s *Store) ListIndexes(ctx context.Context, db, coll string) ([]backend.IndexSpec, error) {
	var specs []backend.IndexSpec
	prefix := []byte(metaIndexPrefix + db + "\x00" + coll + "\x00")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var spec backend.IndexSpec
			if err := item.Value(func(val []byte) error {
				d, err := unmarshalDoc(val)
				if err != nil {
					return err
				}
				spec.Name = fmt.Sprint(gmqb.Get(d, "name"))
				if keys, ok := gmqb.Get(d, "keys").(bson.D); ok {
					spec.Keys = keys
				}
				if u, ok := gmqb.Get(d, "unique").(bool); ok {
					spec.Unique = u
				}
				return nil
			}); err != nil {
				return err
			}
			specs = append(specs, spec)
		}
		return nil
	})
	return specs, err
}

func (s *Store) CreateIndexes(ctx context.Context, db, coll string, specs []backend.IndexSpec) ([]string, error) {
	names := make([]string, 0, len(specs))
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, spec := range specs {
			if spec.Name == "" {
				spec.Name = indexName(spec.Keys)
			}
			doc := bson.D{{Key: "name", Value: spec.Name}, {Key: "keys", Value: spec.Keys}, {Key: "unique", Value: spec.Unique}}
			val, err := marshalDoc(doc)
			if err != nil {
				return err
			}
			key := []byte(metaIndexPrefix + db + "\x00" + coll + "\x00" + spec.Name)
			if err := txn.Set(key, val); err != nil {
				return err
			}
			names = append(names, spec.Name)
		}
		return nil
	})
	return names, err
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
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(metaIndexPrefix + db + "\x00" + coll + "\x00" + name))
	})
}

func (s *Store) DropIndexes(ctx context.Context, db, coll string) error {
	prefix := []byte(metaIndexPrefix + db + "\x00" + coll + "\x00")
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, append([]byte{}, it.Item().Key()...))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
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

// AdvanceCursor pulls up to batchSize more documents from the named
// cursor's own pipeline, reusing the cursor's Next so its buffer, sort,
// and limit/skip bookkeeping stay in one place.
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
	// This call sweeps nothing and always returns nil. Expired cursors are
	// evicted and closed only by the registry's own TTL sweep (see
	// cursor.NewRegistry), which runs on a timer.
	return nil
}

var _ backend.Backend = (*Store)(nil)
