package wire

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	gmqb "github.com/squall-chua/mongofacade"
	"github.com/squall-chua/mongofacade/backend"
	"github.com/squall-chua/mongofacade/router"
)

// commandHandler executes one decoded command document against a session
// and returns the body of the reply (without the trailing "ok" field;
// dispatch adds that once the handler succeeds).
type commandHandler func(ctx context.Context, s *Server, sess *connSession, cmd bson.D) (bson.D, error)

// commandTable is keyed by lowercased command name so "ismaster"/"isMaster"
// resolve to the same handler, matching how real drivers send either
// spelling.
var commandTable = map[string]commandHandler{
	"find":            handleFind,
	"insert":          handleInsert,
	"update":          handleUpdate,
	"delete":          handleDelete,
	"aggregate":       handleAggregate,
	"count":           handleCount,
	"distinct":        handleDistinct,
	"findandmodify":   handleFindAndModify,
	"getmore":         handleGetMore,
	"killcursors":     handleKillCursors,
	"listdatabases":   handleListDatabases,
	"listcollections": handleListCollections,
	"createindexes":   handleCreateIndexes,
	"dropindexes":     handleDropIndexes,
	"hello":           handleHello,
	"ismaster":        handleHello,
	"ping":            handlePing,
	"saslstart":       handleSaslStart,
	"saslcontinue":    handleSaslContinue,
}

// unauthenticatedCommands may run on a connection that hasn't completed
// SCRAM yet: the handshake and auth commands themselves, plus ping/whatsmyuri
// which real drivers probe before authenticating.
var unauthenticatedCommands = map[string]bool{
	"hello":        true,
	"ismaster":     true,
	"saslstart":    true,
	"saslcontinue": true,
	"authenticate": true,
	"logout":       true,
	"ping":         true,
	"whatsmyuri":   true,
}

func cmdGet(cmd bson.D, key string) (interface{}, bool) {
	for _, e := range cmd {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func cmdString(cmd bson.D, key string) string {
	v, _ := cmdGet(cmd, key)
	s, _ := v.(string)
	return s
}

func cmdD(cmd bson.D, key string) bson.D {
	v, _ := cmdGet(cmd, key)
	if d, ok := v.(bson.D); ok {
		return d
	}
	return nil
}

func cmdA(cmd bson.D, key string) bson.A {
	v, _ := cmdGet(cmd, key)
	a, _ := v.(bson.A)
	return a
}

func cmdBool(cmd bson.D, key string) bool {
	v, _ := cmdGet(cmd, key)
	b, _ := v.(bool)
	return b
}

func cmdInt(cmd bson.D, key string, def int) int {
	v, ok := cmdGet(cmd, key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}

// collArg returns the command's own value: by wire convention the first
// element of a command document is {commandName: <collection or 1>}.
func collArg(cmd bson.D) string {
	if len(cmd) == 0 {
		return ""
	}
	s, _ := cmd[0].Value.(string)
	return s
}

func dbArg(cmd bson.D) string {
	if v := cmdString(cmd, "$db"); v != "" {
		return v
	}
	return "admin"
}

func toDSlice(a bson.A) []bson.D {
	out := make([]bson.D, 0, len(a))
	for _, v := range a {
		if d, ok := v.(bson.D); ok {
			out = append(out, d)
		}
	}
	return out
}

func toIndexSpecs(a bson.A) []backend.IndexSpec {
	specs := make([]backend.IndexSpec, 0, len(a))
	for _, v := range a {
		d, ok := v.(bson.D)
		if !ok {
			continue
		}
		specs = append(specs, backend.IndexSpec{
			Name:   cmdString(d, "name"),
			Keys:   cmdD(d, "key"),
			Unique: cmdBool(d, "unique"),
		})
	}
	return specs
}

// handleFind opens a real cursor and dispenses the first batch from it, so
// a result set larger than batchSize can be paged through with getMore. An
// exhausted result reports cursor id "0" and releases the cursor at once.
func handleFind(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	db, coll := dbArg(cmd), collArg(cmd)
	opts := backend.FindOptions{
		Filter:     cmdD(cmd, "filter"),
		Projection: cmdD(cmd, "projection"),
		Sort:       cmdD(cmd, "sort"),
		Limit:      cmdInt(cmd, "limit", 0),
		Skip:       cmdInt(cmd, "skip", 0),
		BatchSize:  cmdInt(cmd, "batchSize", 101),
	}
	id, err := s.engine.CreateCursor(ctx, db, coll, opts)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.AdvanceCursor(ctx, id, opts.BatchSize)
	if err != nil {
		return nil, err
	}
	cursorID := id
	if !res.HasMore {
		cursorID = "0"
		_ = s.engine.CloseCursor(ctx, id)
	}
	docs := res.Documents
	if docs == nil {
		docs = []bson.D{}
	}
	return bson.D{{Key: "cursor", Value: bson.D{
		{Key: "id", Value: cursorID},
		{Key: "ns", Value: db + "." + coll},
		{Key: "firstBatch", Value: docs},
	}}}, nil
}

func handleInsert(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	db, coll := dbArg(cmd), collArg(cmd)
	docs := toDSlice(cmdA(cmd, "documents"))
	ids, err := s.engine.InsertMany(ctx, db, coll, docs)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "n", Value: len(ids)}}, nil
}

func handleUpdate(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	db, coll := dbArg(cmd), collArg(cmd)
	var matched, modified int64
	var upserted bson.A
	for i, raw := range cmdA(cmd, "updates") {
		u, ok := raw.(bson.D)
		if !ok {
			continue
		}
		filter, update := cmdD(u, "q"), cmdD(u, "u")
		upsert := cmdBool(u, "upsert")
		multi := cmdBool(u, "multi")

		var res backend.UpdateResult
		var err error
		if multi {
			res, err = s.engine.UpdateMany(ctx, db, coll, filter, update, upsert)
		} else {
			res, err = s.engine.UpdateOne(ctx, db, coll, filter, update, upsert)
		}
		if err != nil {
			return nil, err
		}
		matched += res.MatchedCount
		modified += res.ModifiedCount
		if res.UpsertedID != nil {
			upserted = append(upserted, bson.D{{Key: "index", Value: i}, {Key: "_id", Value: res.UpsertedID}})
		}
	}
	reply := bson.D{{Key: "n", Value: matched}, {Key: "nModified", Value: modified}}
	if len(upserted) > 0 {
		reply = append(reply, bson.E{Key: "upserted", Value: upserted})
	}
	return reply, nil
}

func handleDelete(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	db, coll := dbArg(cmd), collArg(cmd)
	var n int64
	for _, raw := range cmdA(cmd, "deletes") {
		d, ok := raw.(bson.D)
		if !ok {
			continue
		}
		filter := cmdD(d, "q")
		var count int64
		var err error
		if cmdInt(d, "limit", 0) == 1 {
			count, err = s.engine.DeleteOne(ctx, db, coll, filter)
		} else {
			count, err = s.engine.DeleteMany(ctx, db, coll, filter)
		}
		if err != nil {
			return nil, err
		}
		n += count
	}
	return bson.D{{Key: "n", Value: n}}, nil
}

// handleAggregate always returns the whole pipeline result in one batch:
// the engine's Aggregate runs the pipeline to completion rather than
// streaming it, so there's nothing left to page through on a getMore.
func handleAggregate(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	db, coll := dbArg(cmd), collArg(cmd)
	pipeline := toDSlice(cmdA(cmd, "pipeline"))

	var hint router.Backend
	if opts := cmdD(cmd, "hint"); opts != nil {
		hint = router.Backend(cmdString(opts, "backend"))
	}

	docs, err := s.engine.Aggregate(ctx, db, coll, pipeline, hint)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "cursor", Value: bson.D{
		{Key: "id", Value: "0"},
		{Key: "ns", Value: db + "." + coll},
		{Key: "firstBatch", Value: docs},
	}}}, nil
}

func handleCount(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	db, coll := dbArg(cmd), collArg(cmd)
	n, err := s.engine.Count(ctx, db, coll, cmdD(cmd, "query"))
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "n", Value: n}}, nil
}

func handleDistinct(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	db, coll := dbArg(cmd), collArg(cmd)
	vals, err := s.engine.Distinct(ctx, db, coll, cmdString(cmd, "key"), cmdD(cmd, "query"))
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "values", Value: vals}}, nil
}

func handleFindAndModify(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	db, coll := dbArg(cmd), collArg(cmd)
	doc, err := s.engine.FindAndModify(ctx, db, coll,
		cmdD(cmd, "query"), cmdD(cmd, "update"),
		cmdBool(cmd, "upsert"), cmdBool(cmd, "remove"))
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "value", Value: doc}}, nil
}

func handleGetMore(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	cursorID, _ := cmd[0].Value.(string)
	batchSize := cmdInt(cmd, "batchSize", 101)
	res, err := s.engine.AdvanceCursor(ctx, cursorID, batchSize)
	if err != nil {
		return nil, err
	}
	nextID := res.CursorID
	if !res.HasMore {
		nextID = "0"
	}
	ns := dbArg(cmd) + "." + cmdString(cmd, "collection")
	return bson.D{{Key: "cursor", Value: bson.D{
		{Key: "id", Value: nextID},
		{Key: "ns", Value: ns},
		{Key: "nextBatch", Value: res.Documents},
	}}}, nil
}

func handleKillCursors(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	var killed bson.A
	for _, raw := range cmdA(cmd, "cursors") {
		id, ok := raw.(string)
		if !ok {
			continue
		}
		if err := s.engine.CloseCursor(ctx, id); err == nil {
			killed = append(killed, id)
		}
	}
	return bson.D{{Key: "cursorsKilled", Value: killed}}, nil
}

func handleListDatabases(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	names, err := s.engine.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	var entries bson.A
	for _, n := range names {
		entries = append(entries, bson.D{{Key: "name", Value: n}})
	}
	return bson.D{{Key: "databases", Value: entries}}, nil
}

func handleListCollections(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	db := dbArg(cmd)
	names, err := s.engine.ListCollections(ctx, db)
	if err != nil {
		return nil, err
	}
	var entries bson.A
	for _, n := range names {
		entries = append(entries, bson.D{{Key: "name", Value: n}, {Key: "type", Value: "collection"}})
	}
	return bson.D{{Key: "cursor", Value: bson.D{
		{Key: "id", Value: "0"},
		{Key: "ns", Value: db + ".$cmd.listCollections"},
		{Key: "firstBatch", Value: entries},
	}}}, nil
}

func handleCreateIndexes(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	db, coll := dbArg(cmd), collArg(cmd)
	before, err := s.engine.ListIndexes(ctx, db, coll)
	if err != nil {
		return nil, err
	}
	names, err := s.engine.CreateIndexes(ctx, db, coll, toIndexSpecs(cmdA(cmd, "indexes")))
	if err != nil {
		return nil, err
	}
	return bson.D{
		{Key: "numIndexesBefore", Value: len(before)},
		{Key: "numIndexesAfter", Value: len(before) + len(names)},
	}, nil
}

func handleDropIndexes(ctx context.Context, s *Server, _ *connSession, cmd bson.D) (bson.D, error) {
	db, coll := dbArg(cmd), collArg(cmd)
	index := cmdString(cmd, "index")
	if index == "" || index == "*" {
		if err := s.engine.DropIndexes(ctx, db, coll); err != nil {
			return nil, err
		}
		return bson.D{}, nil
	}
	if err := s.engine.DropIndex(ctx, db, coll, index); err != nil {
		return nil, err
	}
	return bson.D{}, nil
}

func handleHello(_ context.Context, s *Server, sess *connSession, _ bson.D) (bson.D, error) {
	return bson.D{
		{Key: "ismaster", Value: true},
		{Key: "isWritablePrimary", Value: true},
		{Key: "maxWireVersion", Value: s.maxWireVersion},
		{Key: "maxBsonObjectSize", Value: maxDocumentBytes},
		{Key: "maxMessageSizeBytes", Value: maxMessageBytes},
		{Key: "readOnly", Value: false},
		{Key: "saslSupportedMechs", Value: bson.A{"SCRAM-SHA-256"}},
	}, nil
}

func handlePing(_ context.Context, _ *Server, _ *connSession, _ bson.D) (bson.D, error) {
	return bson.D{}, nil
}

func handleSaslStart(ctx context.Context, s *Server, sess *connSession, cmd bson.D) (bson.D, error) {
	if s.authSrv == nil {
		return nil, gmqb.NewError(gmqb.KindInvalidOperation, nil, "authentication is not configured")
	}
	conv, err := s.authSrv.NewConversation(ctx)
	if err != nil {
		return nil, err
	}
	sess.conv = conv
	return stepConversation(sess, cmd, 1)
}

func handleSaslContinue(_ context.Context, _ *Server, sess *connSession, cmd bson.D) (bson.D, error) {
	if sess.conv == nil {
		return nil, gmqb.NewError(gmqb.KindInvalidOperation, nil, "saslContinue without a saslStart")
	}
	return stepConversation(sess, cmd, cmdInt(cmd, "conversationId", 1))
}

func stepConversation(sess *connSession, cmd bson.D, conversationID int) (bson.D, error) {
	payload := payloadOf(cmd)
	reply, done, err := sess.conv.Step(payload)
	if err != nil {
		return nil, err
	}
	if done {
		sess.authenticated = sess.conv.Valid()
		if !sess.authenticated {
			return nil, gmqb.NewError(gmqb.KindInvalidOperation, nil, "authentication failed")
		}
	}
	return bson.D{
		{Key: "conversationId", Value: conversationID},
		{Key: "done", Value: done},
		{Key: "payload", Value: bson.Binary{Subtype: 0x00, Data: []byte(reply)}},
	}, nil
}

func payloadOf(cmd bson.D) string {
	v, _ := cmdGet(cmd, "payload")
	switch p := v.(type) {
	case bson.Binary:
		return string(p.Data)
	case []byte:
		return string(p)
	case string:
		return p
	default:
		return ""
	}
}
