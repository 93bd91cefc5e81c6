// Package executor is the core dispatch point every external interface
// (the wire protocol, the RPC surface) calls through: it decides OLTP vs
// OLAP for reads, always sends writes and metadata calls to OLTP, records
// metrics, and fans out change-stream events after a successful write.
package executor

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	gmqb "github.com/squall-chua/mongofacade"
	"github.com/squall-chua/mongofacade/backend"
	"github.com/squall-chua/mongofacade/changestream"
	"github.com/squall-chua/mongofacade/cursor"
	"github.com/squall-chua/mongofacade/logging"
	"github.com/squall-chua/mongofacade/metrics"
	"github.com/squall-chua/mongofacade/router"
	"github.com/squall-chua/mongofacade/validate"
)

// Engine ties a routing policy to the OLTP/OLAP backends it routes between.
type Engine struct {
	OLTP backend.Backend
	OLAP backend.Backend // nil when no OLAP backend is configured

	RouterConfig router.Config
	Cache        *DecisionCache
	Metrics      *metrics.Registry
	Logger       *logging.Logger
	Emitter      changestream.Emitter
}

// New builds an Engine. olap may be nil.
func New(oltp, olap backend.Backend) *Engine {
	cfg := router.DefaultConfig()
	cfg.OLAPConfigured = olap != nil
	return &Engine{
		OLTP:         oltp,
		OLAP:         olap,
		RouterConfig: cfg,
		Metrics:      metrics.Global(),
		Logger:       logging.Default(),
		Emitter:      changestream.NewInProcessEmitter(),
	}
}

func (e *Engine) backendFor(d router.Decision) backend.Backend {
	if d.Backend == router.OLAP && e.OLAP != nil {
		return e.OLAP
	}
	return e.OLTP
}

func (e *Engine) route(ctx context.Context, req router.Request) router.Decision {
	key := router.Key(req)
	if d, ok := e.Cache.Get(ctx, key); ok {
		if e.Metrics != nil {
			e.Metrics.ObserveRouterCacheHit()
		}
		return d
	}
	if e.Metrics != nil {
		e.Metrics.ObserveRouterCacheMiss()
	}
	d := router.Route(req, e.RouterConfig)
	e.Cache.Set(ctx, key, d)
	if e.Metrics != nil {
		e.Metrics.ObserveRouterDecision(string(d.Backend), d.Reason)
	}
	return d
}

func (e *Engine) observe(op, backendName string, start time.Time, err error) {
	if e.Metrics == nil {
		return
	}
	kind := ""
	if err != nil {
		kind = gmqb.KindOf(err).String()
	}
	e.Metrics.ObserveOp(op, backendName, time.Since(start).Seconds(), kind)
}

// ListDatabases, CreateDatabase, DropDatabase, and the collection/index
// equivalents are metadata calls: they always go to OLTP.

func (e *Engine) ListDatabases(ctx context.Context) ([]string, error) {
	return e.OLTP.ListDatabases(ctx)
}

func (e *Engine) CreateDatabase(ctx context.Context, name string) error {
	if err := validate.DatabaseName(name); err != nil {
		return err
	}
	if err := e.OLTP.CreateDatabase(ctx, name); err != nil {
		return err
	}
	e.mirrorToOLAP("createDatabase", func(b backend.Backend) error {
		return b.CreateDatabase(ctx, name)
	})
	return nil
}

func (e *Engine) DropDatabase(ctx context.Context, name string) error {
	if err := e.OLTP.DropDatabase(ctx, name); err != nil {
		return err
	}
	e.mirrorToOLAP("dropDatabase", func(b backend.Backend) error {
		return b.DropDatabase(ctx, name)
	})
	e.Emitter.Emit(ctx, changestream.New(changestream.OpDropDatabase, name, "", nil))
	return nil
}

func (e *Engine) ListCollections(ctx context.Context, db string) ([]string, error) {
	return e.OLTP.ListCollections(ctx, db)
}

func (e *Engine) CreateCollection(ctx context.Context, db, coll string, opts backend.CollectionOptions) error {
	if err := validate.DatabaseName(db); err != nil {
		return err
	}
	if err := validate.CollectionName(coll); err != nil {
		return err
	}
	if err := e.OLTP.CreateCollection(ctx, db, coll, opts); err != nil {
		return err
	}
	e.mirrorToOLAP("createCollection", func(b backend.Backend) error {
		return b.CreateCollection(ctx, db, coll, opts)
	})
	return nil
}

func (e *Engine) DropCollection(ctx context.Context, db, coll string) error {
	if err := e.OLTP.DropCollection(ctx, db, coll); err != nil {
		return err
	}
	e.mirrorToOLAP("dropCollection", func(b backend.Backend) error {
		return b.DropCollection(ctx, db, coll)
	})
	e.Emitter.Emit(ctx, changestream.New(changestream.OpDrop, db, coll, nil))
	return nil
}

func (e *Engine) CollStats(ctx context.Context, db, coll string) (backend.CollStats, error) {
	return e.OLTP.CollStats(ctx, db, coll)
}

func (e *Engine) DBStats(ctx context.Context, db string) (backend.DBStats, error) {
	return e.OLTP.DBStats(ctx, db)
}

func (e *Engine) ListIndexes(ctx context.Context, db, coll string) ([]backend.IndexSpec, error) {
	return e.OLTP.ListIndexes(ctx, db, coll)
}

func (e *Engine) CreateIndexes(ctx context.Context, db, coll string, specs []backend.IndexSpec) ([]string, error) {
	return e.OLTP.CreateIndexes(ctx, db, coll, specs)
}

func (e *Engine) DropIndex(ctx context.Context, db, coll, name string) error {
	return e.OLTP.DropIndex(ctx, db, coll, name)
}

func (e *Engine) DropIndexes(ctx context.Context, db, coll string) error {
	return e.OLTP.DropIndexes(ctx, db, coll)
}

// Find routes a read to OLTP or OLAP and records the decision.
func (e *Engine) Find(ctx context.Context, db, coll string, opts backend.FindOptions) (backend.FindResult, error) {
	start := time.Now()
	d := e.route(ctx, router.Request{Op: router.OpFind, Filter: opts.Filter, Limit: opts.Limit, Override: opts.BackendHint})
	res, err := e.backendFor(d).Find(ctx, db, coll, opts)
	e.observe("find", string(d.Backend), start, err)
	if err != nil {
		return res, err
	}
	// Tag the cursor id with the backend that owns it, exactly as
	// CreateCursor does, so a later getMore/killCursors call can route back
	// to the right store without the cursor registry needing routing
	// awareness.
	if res.CursorID != "" {
		res.CursorID = string(d.Backend) + ":" + res.CursorID
		if e.Metrics != nil {
			e.Metrics.CursorOpened()
		}
	}
	return res, err
}

func (e *Engine) CreateCursor(ctx context.Context, db, coll string, opts backend.FindOptions) (string, error) {
	d := e.route(ctx, router.Request{Op: router.OpFind, Filter: opts.Filter, Limit: opts.Limit, Override: opts.BackendHint})
	id, err := e.backendFor(d).CreateCursor(ctx, db, coll, opts)
	if err != nil {
		return "", err
	}
	if e.Metrics != nil {
		e.Metrics.CursorOpened()
	}
	return string(d.Backend) + ":" + id, nil
}

func (e *Engine) AdvanceCursor(ctx context.Context, id string, batchSize int) (backend.FindResult, error) {
	backendName, raw := splitCursorID(id)
	b := e.backendByName(backendName)
	res, err := b.AdvanceCursor(ctx, raw, batchSize)
	if err != nil {
		return res, err
	}
	// Re-tag the id so the caller's next getMore routes back here.
	if res.CursorID != "" {
		res.CursorID = backendName + ":" + res.CursorID
	}
	return res, nil
}

func (e *Engine) CloseCursor(ctx context.Context, id string) error {
	backendName, raw := splitCursorID(id)
	b := e.backendByName(backendName)
	if err := b.CloseCursor(ctx, raw); err != nil {
		return err
	}
	if e.Metrics != nil {
		e.Metrics.CursorClosed("closed")
	}
	return nil
}

func (e *Engine) GetCursor(ctx context.Context, id string) (*cursor.Cursor, bool) {
	backendName, raw := splitCursorID(id)
	if cur, ok := e.backendByName(backendName).GetCursor(ctx, raw); ok {
		return cur, true
	}
	// An untagged id defaults to OLTP above; if OLTP doesn't know it, the
	// other backend may.
	if backendName != string(router.OLAP) && e.OLAP != nil {
		return e.OLAP.GetCursor(ctx, raw)
	}
	return nil, false
}

func (e *Engine) CleanupExpiredCursors(ctx context.Context) error {
	if err := e.OLTP.CleanupExpiredCursors(ctx); err != nil {
		return err
	}
	if e.OLAP != nil {
		return e.OLAP.CleanupExpiredCursors(ctx)
	}
	return nil
}

func (e *Engine) DatabaseExists(ctx context.Context, name string) (bool, error) {
	return e.OLTP.DatabaseExists(ctx, name)
}

func (e *Engine) CollectionExists(ctx context.Context, db, coll string) (bool, error) {
	return e.OLTP.CollectionExists(ctx, db, coll)
}

func (e *Engine) backendByName(name string) backend.Backend {
	if name == string(router.OLAP) && e.OLAP != nil {
		return e.OLAP
	}
	return e.OLTP
}

func splitCursorID(id string) (backendName, raw string) {
	for i := 0; i < len(id); i++ {
		if id[i] == ':' {
			return id[:i], id[i+1:]
		}
	}
	return string(router.OLTP), id
}

// mirrorToOLAP replays a committed OLTP write onto the OLAP store, keeping
// the analytical copy convergent with the transactional one. A mirror
// failure is logged, never surfaced: the OLTP write already committed, and
// the analytical copy is best-effort by design.
func (e *Engine) mirrorToOLAP(op string, fn func(b backend.Backend) error) {
	if e.OLAP == nil {
		return
	}
	if err := fn(e.OLAP); err != nil && e.Logger != nil {
		e.Logger.Warn("olap mirror failed", "op", op, "error", err)
	}
}

// withID returns doc guaranteed to carry id as its _id, prepending it when
// the caller left _id for the backend to generate.
func withID(doc bson.D, id interface{}) bson.D {
	if !gmqb.IsMissing(gmqb.Get(doc, "_id")) {
		return doc
	}
	return append(bson.D{{Key: "_id", Value: id}}, doc...)
}

// resolveTarget finds the single OLTP document filter selects, so a
// one-document write can pin both stores to the same _id instead of letting
// each store pick its own "first match".
func (e *Engine) resolveTarget(ctx context.Context, db, coll string, filter bson.D) (bson.D, bool) {
	res, err := e.OLTP.Find(ctx, db, coll, backend.FindOptions{Filter: filter, Limit: 1})
	if err != nil || len(res.Documents) == 0 {
		return nil, false
	}
	return res.Documents[0], true
}

// mirrorPostImage replaces OLAP's copy of the document with id by the
// post-image just committed to OLTP.
func (e *Engine) mirrorPostImage(ctx context.Context, db, coll string, id interface{}) {
	e.mirrorToOLAP("replace", func(b backend.Backend) error {
		idFilter := bson.D{{Key: "_id", Value: id}}
		res, err := e.OLTP.Find(ctx, db, coll, backend.FindOptions{Filter: idFilter, Limit: 1})
		if err != nil {
			return err
		}
		if _, err := b.DeleteOne(ctx, db, coll, idFilter); err != nil {
			return err
		}
		if len(res.Documents) == 0 {
			return nil
		}
		_, err = b.InsertOne(ctx, db, coll, res.Documents[0])
		return err
	})
}

func (e *Engine) InsertOne(ctx context.Context, db, coll string, doc bson.D) (interface{}, error) {
	start := time.Now()
	id, err := e.OLTP.InsertOne(ctx, db, coll, doc)
	e.observe("insertOne", string(router.OLTP), start, err)
	if err != nil {
		return nil, err
	}
	e.mirrorToOLAP("insertOne", func(b backend.Backend) error {
		_, err := b.InsertOne(ctx, db, coll, withID(doc, id))
		return err
	})
	ev := changestream.New(changestream.OpInsert, db, coll, id)
	ev.FullDocument = doc
	e.Emitter.Emit(ctx, ev)
	return id, nil
}

func (e *Engine) InsertMany(ctx context.Context, db, coll string, docs []bson.D) ([]interface{}, error) {
	start := time.Now()
	ids, err := e.OLTP.InsertMany(ctx, db, coll, docs)
	e.observe("insertMany", string(router.OLTP), start, err)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		ev := changestream.New(changestream.OpInsert, db, coll, id)
		if i < len(docs) {
			doc := withID(docs[i], id)
			ev.FullDocument = docs[i]
			e.mirrorToOLAP("insertMany", func(b backend.Backend) error {
				_, err := b.InsertOne(ctx, db, coll, doc)
				return err
			})
		}
		e.Emitter.Emit(ctx, ev)
	}
	return ids, nil
}

func (e *Engine) UpdateOne(ctx context.Context, db, coll string, filter, update bson.D, upsert bool) (backend.UpdateResult, error) {
	start := time.Now()
	target, found := e.resolveTarget(ctx, db, coll, filter)
	f := filter
	if found {
		f = bson.D{{Key: "_id", Value: gmqb.Get(target, "_id")}}
	}
	res, err := e.OLTP.UpdateOne(ctx, db, coll, f, update, upsert)
	e.observe("updateOne", string(router.OLTP), start, err)
	if err != nil {
		return res, err
	}
	switch {
	case res.UpsertedID != nil:
		e.mirrorPostImage(ctx, db, coll, res.UpsertedID)
	case found && res.ModifiedCount > 0:
		e.mirrorPostImage(ctx, db, coll, gmqb.Get(target, "_id"))
	}
	e.emitUpdate(ctx, db, coll, res)
	return res, nil
}

func (e *Engine) UpdateMany(ctx context.Context, db, coll string, filter, update bson.D, upsert bool) (backend.UpdateResult, error) {
	start := time.Now()
	res, err := e.OLTP.UpdateMany(ctx, db, coll, filter, update, upsert)
	e.observe("updateMany", string(router.OLTP), start, err)
	if err != nil {
		return res, err
	}
	switch {
	case res.UpsertedID != nil:
		e.mirrorPostImage(ctx, db, coll, res.UpsertedID)
	case res.ModifiedCount > 0:
		e.mirrorToOLAP("updateMany", func(b backend.Backend) error {
			_, err := b.UpdateMany(ctx, db, coll, filter, update, false)
			return err
		})
	}
	e.emitUpdate(ctx, db, coll, res)
	return res, nil
}

func (e *Engine) emitUpdate(ctx context.Context, db, coll string, res backend.UpdateResult) {
	if res.UpsertedID != nil {
		e.Emitter.Emit(ctx, changestream.New(changestream.OpInsert, db, coll, res.UpsertedID))
		return
	}
	if res.ModifiedCount > 0 {
		e.Emitter.Emit(ctx, changestream.New(changestream.OpUpdate, db, coll, nil))
	}
}

func (e *Engine) DeleteOne(ctx context.Context, db, coll string, filter bson.D) (int64, error) {
	start := time.Now()
	target, found := e.resolveTarget(ctx, db, coll, filter)
	f := filter
	if found {
		f = bson.D{{Key: "_id", Value: gmqb.Get(target, "_id")}}
	}
	n, err := e.OLTP.DeleteOne(ctx, db, coll, f)
	e.observe("deleteOne", string(router.OLTP), start, err)
	if err == nil && n > 0 {
		e.mirrorToOLAP("deleteOne", func(b backend.Backend) error {
			_, err := b.DeleteOne(ctx, db, coll, f)
			return err
		})
		e.Emitter.Emit(ctx, changestream.New(changestream.OpDelete, db, coll, nil))
	}
	return n, err
}

func (e *Engine) DeleteMany(ctx context.Context, db, coll string, filter bson.D) (int64, error) {
	start := time.Now()
	n, err := e.OLTP.DeleteMany(ctx, db, coll, filter)
	e.observe("deleteMany", string(router.OLTP), start, err)
	if err == nil && n > 0 {
		e.mirrorToOLAP("deleteMany", func(b backend.Backend) error {
			_, err := b.DeleteMany(ctx, db, coll, filter)
			return err
		})
		e.Emitter.Emit(ctx, changestream.New(changestream.OpDelete, db, coll, nil))
	}
	return n, err
}

func (e *Engine) Count(ctx context.Context, db, coll string, filter bson.D) (int64, error) {
	start := time.Now()
	d := e.route(ctx, router.Request{Op: router.OpCount, Filter: filter})
	n, err := e.backendFor(d).Count(ctx, db, coll, filter)
	e.observe("count", string(d.Backend), start, err)
	return n, err
}

func (e *Engine) Distinct(ctx context.Context, db, coll, field string, filter bson.D) ([]interface{}, error) {
	start := time.Now()
	d := e.route(ctx, router.Request{Op: router.OpDistinct, Filter: filter})
	vals, err := e.backendFor(d).Distinct(ctx, db, coll, field, filter)
	e.observe("distinct", string(d.Backend), start, err)
	return vals, err
}

func (e *Engine) Aggregate(ctx context.Context, db, coll string, pipeline []bson.D, hint router.Backend) ([]bson.D, error) {
	start := time.Now()
	d := e.route(ctx, router.Request{Op: router.OpAggregate, Pipeline: pipeline, Override: hint})
	docs, err := e.backendFor(d).Aggregate(ctx, db, coll, pipeline)
	e.observe("aggregate", string(d.Backend), start, err)
	return docs, err
}

// FindAndModify is findAndModify's combined update-then-return semantics,
// built from the primitives the Backend already exposes rather than its
// own storage-layer method.
func (e *Engine) FindAndModify(ctx context.Context, db, coll string, filter, update bson.D, upsert, remove bool) (bson.D, error) {
	res, err := e.OLTP.Find(ctx, db, coll, backend.FindOptions{Filter: filter, Limit: 1})
	if err != nil {
		return nil, err
	}
	var before bson.D
	if len(res.Documents) > 0 {
		before = res.Documents[0]
	}

	if remove {
		if before == nil {
			return nil, nil
		}
		if _, err := e.DeleteOne(ctx, db, coll, filter); err != nil {
			return nil, err
		}
		return before, nil
	}

	if _, err := e.UpdateOne(ctx, db, coll, filter, update, upsert); err != nil {
		return nil, err
	}
	after, err := e.OLTP.Find(ctx, db, coll, backend.FindOptions{Filter: filter, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(after.Documents) > 0 {
		return after.Documents[0], nil
	}
	return before, nil
}
