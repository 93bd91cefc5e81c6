// Package changestream models the facade's in-process change-event feed:
// every write dispatches an Event to subscribers, with no external
// transport; callers wanting delivery outside this process own that wiring
// themselves.
package changestream

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// OperationType is the kind of write that produced an Event.
type OperationType string

const (
	OpInsert       OperationType = "insert"
	OpUpdate       OperationType = "update"
	OpReplace      OperationType = "replace"
	OpDelete       OperationType = "delete"
	OpDrop         OperationType = "drop"
	OpDropDatabase OperationType = "dropDatabase"
	OpInvalidate   OperationType = "invalidate"
	OpRename       OperationType = "rename"
)

// Namespace identifies the database/collection an Event occurred in.
type Namespace struct {
	DB         string `bson:"db"`
	Collection string `bson:"coll"`
}

// UpdateDescription details what changed for an OpUpdate event.
type UpdateDescription struct {
	UpdatedFields   bson.D           `bson:"updatedFields,omitempty"`
	RemovedFields   []string         `bson:"removedFields,omitempty"`
	TruncatedArrays []TruncatedArray `bson:"truncatedArrays,omitempty"`
}

// TruncatedArray records that an array field was shortened to NewSize
// elements as part of an update.
type TruncatedArray struct {
	Field   string `bson:"field"`
	NewSize int    `bson:"newSize"`
}

// Event is one change-stream record.
type Event struct {
	ID                bson.ObjectID      `bson:"_id"`
	OperationType     OperationType      `bson:"operationType"`
	ClusterTime       int64              `bson:"clusterTime,omitempty"`
	NS                Namespace          `bson:"ns"`
	DocumentKey       bson.D             `bson:"documentKey,omitempty"`
	FullDocument      bson.D             `bson:"fullDocument,omitempty"`
	UpdateDescription *UpdateDescription `bson:"updateDescription,omitempty"`
}

// New builds an Event with a fresh id, for a single call-site to construct
// from rather than repeating the bson.ObjectID/NS plumbing at each emit
// site.
func New(op OperationType, db, coll string, id interface{}) Event {
	var key bson.D
	if id != nil {
		key = bson.D{{Key: "_id", Value: id}}
	}
	return Event{
		ID:            bson.NewObjectID(),
		OperationType: op,
		NS:            Namespace{DB: db, Collection: coll},
		DocumentKey:   key,
	}
}
