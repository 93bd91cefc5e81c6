// Package backend defines the storage trait the core dispatches every
// operation through, independent of which engine (OLTP row store, OLAP
// column store) ultimately serves it.
package backend

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/squall-chua/mongofacade/cursor"
	"github.com/squall-chua/mongofacade/router"
)

// FindOptions carries every parameter a find/aggregate read can be given.
type FindOptions struct {
	Filter     bson.D
	Projection bson.D
	Sort       bson.D
	Limit      int
	Skip       int
	BatchSize  int

	// BackendHint is an explicit caller override consumed by the router
	// ahead of a Find call; a Backend implementation never looks at it
	// directly; it is here purely so the dispatcher can build one
	// router.Request from one FindOptions value.
	BackendHint router.Backend
}

// FindResult is what a find (or the read-half of aggregate) returns.
type FindResult struct {
	Documents []bson.D
	CursorID  string
	HasMore   bool
}

// UpdateResult reports the outcome of an updateOne/updateMany call.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedID    interface{}
}

// CollectionOptions configures createCollection.
type CollectionOptions struct {
	Capped       bool
	SizeBytes    int64
	MaxDocuments int64
}

// CollStats reports per-collection sizing.
type CollStats struct {
	Collection string
	Count      int64
	SizeBytes  int64
}

// DBStats reports per-database sizing.
type DBStats struct {
	Database    string
	Collections int
	SizeBytes   int64
}

// IndexSpec names an index: either an existing one (ListIndexes) or one to
// create (CreateIndexes).
type IndexSpec struct {
	Name   string
	Keys   bson.D
	Unique bool
}

// Backend is the storage trait every operation in the core is dispatched
// through. backend/oltp and backend/olap each implement it once.
type Backend interface {
	ListDatabases(ctx context.Context) ([]string, error)
	CreateDatabase(ctx context.Context, name string) error
	DropDatabase(ctx context.Context, name string) error
	DatabaseExists(ctx context.Context, name string) (bool, error)

	ListCollections(ctx context.Context, db string) ([]string, error)
	CreateCollection(ctx context.Context, db, coll string, opts CollectionOptions) error
	DropCollection(ctx context.Context, db, coll string) error
	CollectionExists(ctx context.Context, db, coll string) (bool, error)
	CollStats(ctx context.Context, db, coll string) (CollStats, error)
	DBStats(ctx context.Context, db string) (DBStats, error)

	Find(ctx context.Context, db, coll string, opts FindOptions) (FindResult, error)
	InsertOne(ctx context.Context, db, coll string, doc bson.D) (interface{}, error)
	InsertMany(ctx context.Context, db, coll string, docs []bson.D) ([]interface{}, error)
	UpdateOne(ctx context.Context, db, coll string, filter, update bson.D, upsert bool) (UpdateResult, error)
	UpdateMany(ctx context.Context, db, coll string, filter, update bson.D, upsert bool) (UpdateResult, error)
	DeleteOne(ctx context.Context, db, coll string, filter bson.D) (int64, error)
	DeleteMany(ctx context.Context, db, coll string, filter bson.D) (int64, error)
	Count(ctx context.Context, db, coll string, filter bson.D) (int64, error)
	Distinct(ctx context.Context, db, coll, field string, filter bson.D) ([]interface{}, error)
	Aggregate(ctx context.Context, db, coll string, pipeline []bson.D) ([]bson.D, error)

	ListIndexes(ctx context.Context, db, coll string) ([]IndexSpec, error)
	CreateIndexes(ctx context.Context, db, coll string, specs []IndexSpec) ([]string, error)
	DropIndex(ctx context.Context, db, coll, name string) error
	DropIndexes(ctx context.Context, db, coll string) error

	CreateCursor(ctx context.Context, db, coll string, opts FindOptions) (string, error)
	GetCursor(ctx context.Context, id string) (*cursor.Cursor, bool)
	AdvanceCursor(ctx context.Context, id string, batchSize int) (FindResult, error)
	CloseCursor(ctx context.Context, id string) error
	CleanupExpiredCursors(ctx context.Context) error
}
