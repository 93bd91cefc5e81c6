package gmqb

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Updater is an immutable update-operator document. Each chaining method
// returns a new Updater and leaves the receiver untouched. The operators
// accumulate in the order first seen, but Apply runs them in its own fixed
// order regardless, so chain order never changes the outcome.
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/
//
// Example:
//
//	u := gmqb.NewUpdate().
//	    Set("name", "Bob").
//	    Inc("age", 1).
//	    Push("tags", "verified")
//	after, changed, err := u.Apply(doc, false)
type Updater struct {
	ops bson.D
}

// NewUpdate returns an empty Updater. Applying an empty update is an
// error, not a no-op; see Apply.
func NewUpdate() Updater {
	return Updater{}
}

// BsonD returns the update-operator document as a bson.D, the shape an
// update command's "u" argument carries on the wire.
func (u Updater) BsonD() bson.D {
	return u.ops
}

// JSON renders the update document as indented extended JSON.
func (u Updater) JSON() string {
	return toJSON(u.ops)
}

// CompactJSON renders the update document as single-line extended JSON.
func (u Updater) CompactJSON() string {
	return toCompactJSON(u.ops)
}

// IsEmpty reports whether no operators have been chained on.
func (u Updater) IsEmpty() bool {
	return len(u.ops) == 0
}

// addOp merges one field spec into the named operator's sub-document,
// creating the operator entry on first use.
func (u Updater) addOp(op string, field string, value interface{}) Updater {
	newOps := make(bson.D, len(u.ops))
	copy(newOps, u.ops)

	for i, e := range newOps {
		if e.Key == op {
			existing := e.Value.(bson.D)
			merged := make(bson.D, len(existing), len(existing)+1)
			copy(merged, existing)
			merged = append(merged, bson.E{Key: field, Value: value})
			newOps[i] = bson.E{Key: op, Value: merged}
			return Updater{ops: newOps}
		}
	}

	newOps = append(newOps, bson.E{Key: op, Value: bson.D{{Key: field, Value: value}}})
	return Updater{ops: newOps}
}

// --- Field Update Operators ---

// Set writes value at field, creating the field (and any missing
// intermediate documents in a dotted path) as needed.
//
// MongoDB equivalent:
//
//	{ $set: { field: value } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/set/
func (u Updater) Set(field string, value interface{}) Updater {
	return u.addOp(opSet, field, value)
}

// Unset removes field from the document. Removing an absent field is a
// no-op.
//
// MongoDB equivalent:
//
//	{ $unset: { field: "" } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/unset/
func (u Updater) Unset(field string) Updater {
	return u.addOp(opUnset, field, "")
}

// Inc adds amount to a numeric field; an absent field starts from zero.
// Applying it to an existing non-numeric value fails the update. Negative
// amounts decrement.
//
// MongoDB equivalent:
//
//	{ $inc: { field: amount } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/inc/
func (u Updater) Inc(field string, amount interface{}) Updater {
	return u.addOp(opInc, field, amount)
}

// Mul multiplies a numeric field by number; an absent field becomes zero.
// Non-numeric existing values fail the update.
//
// MongoDB equivalent:
//
//	{ $mul: { field: number } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/mul/
func (u Updater) Mul(field string, number interface{}) Updater {
	return u.addOp(opMul, field, number)
}

// Min writes value only when the field is absent or value orders before
// the current value.
//
// MongoDB equivalent:
//
//	{ $min: { field: value } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/min/
func (u Updater) Min(field string, value interface{}) Updater {
	return u.addOp(opMin, field, value)
}

// Max writes value only when the field is absent or value orders after the
// current value.
//
// MongoDB equivalent:
//
//	{ $max: { field: value } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/max/
func (u Updater) Max(field string, value interface{}) Updater {
	return u.addOp(opMax, field, value)
}

// Rename moves a field's value to a new name. Renaming an absent field is
// a no-op; renaming anything onto _id is rejected at apply time.
//
// MongoDB equivalent:
//
//	{ $rename: { oldName: newName } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/rename/
func (u Updater) Rename(oldName, newName string) Updater {
	return u.addOp(opRename, oldName, newName)
}

// CurrentDate writes the wall-clock time at apply, as a Date.
//
// MongoDB equivalent:
//
//	{ $currentDate: { field: true } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/currentDate/
func (u Updater) CurrentDate(field string) Updater {
	return u.addOp(opCurrentDate, field, true)
}

// CurrentDateAsTimestamp writes the wall-clock time at apply, as a
// Timestamp.
//
// MongoDB equivalent:
//
//	{ $currentDate: { field: { $type: "timestamp" } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/currentDate/
func (u Updater) CurrentDateAsTimestamp(field string) Updater {
	return u.addOp(opCurrentDate, field, bson.D{{Key: opType, Value: "timestamp"}})
}

// SetOnInsert writes value only when the update runs as an upsert's
// insert; against an existing document it does nothing. It is also the one
// operator allowed to seed _id on that insert.
//
// MongoDB equivalent:
//
//	{ $setOnInsert: { field: value } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/setOnInsert/
//
// Example:
//
//	u := gmqb.NewUpdate().
//	    Set("status", "active").
//	    SetOnInsert("createdAt", time.Now())
func (u Updater) SetOnInsert(field string, value interface{}) Updater {
	return u.addOp(opSetOnInsert, field, value)
}

// --- Array Update Operators ---

// AddToSet appends value to a sequence field unless an element already
// structurally equals it. An absent field becomes a one-element sequence.
//
// MongoDB equivalent:
//
//	{ $addToSet: { field: value } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/addToSet/
func (u Updater) AddToSet(field string, value interface{}) Updater {
	return u.addOp(opAddToSet, field, value)
}

// AddToSetEach appends each of values not already present: $addToSet with
// the $each modifier.
//
// MongoDB equivalent:
//
//	{ $addToSet: { field: { $each: [values...] } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/addToSet/
func (u Updater) AddToSetEach(field string, values ...interface{}) Updater {
	return u.addOp(opAddToSet, field, bson.D{{Key: opEach, Value: bson.A(values)}})
}

// Pop removes one element from a sequence field: direction 1 drops the
// last element, -1 the first.
//
// MongoDB equivalent:
//
//	{ $pop: { field: 1 } }  // remove last
//	{ $pop: { field: -1 } } // remove first
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/pop/
func (u Updater) Pop(field string, direction int) Updater {
	return u.addOp(opPop, field, direction)
}

// Pull removes every sequence element matching condition: a literal value
// for structural equality, or an operator document (e.g. {$gt: 25}) that
// each element is tested against.
//
// MongoDB equivalent:
//
//	{ $pull: { field: condition } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/pull/
//
// Example:
//
//	u := gmqb.NewUpdate().Pull("tags", "obsolete")
func (u Updater) Pull(field string, condition interface{}) Updater {
	return u.addOp(opPull, field, condition)
}

// PullAll removes every sequence element structurally equal to any of
// values.
//
// MongoDB equivalent:
//
//	{ $pullAll: { field: [value1, value2, ...] } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/pullAll/
func (u Updater) PullAll(field string, values ...interface{}) Updater {
	return u.addOp(opPullAll, field, bson.A(values))
}

// Push appends value to a sequence field, creating the sequence if absent.
//
// MongoDB equivalent:
//
//	{ $push: { field: value } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/push/
func (u Updater) Push(field string, value interface{}) Updater {
	return u.addOp(opPush, field, value)
}

// PushOpts carries the $push modifiers.
// See: https://www.mongodb.com/docs/manual/reference/operator/update/push/#modifiers
type PushOpts struct {
	// Each appends multiple values, and is what makes the other modifiers
	// expressible at all.
	Each []interface{}

	// Position is the insertion index; negative counts from the end.
	Position *int

	// Slice trims the sequence after the push: n >= 0 keeps the first n
	// elements, n < 0 the last |n|.
	Slice *int

	// Sort reorders after the push: 1/-1 for scalar elements, a bson.D of
	// key/direction rules for document elements.
	Sort interface{}
}

// PushWithOpts appends elements with the $each/$position/$slice/$sort
// modifiers. Apply runs the modifiers in that order: insert, then sort,
// then trim.
//
// MongoDB equivalent:
//
//	{ $push: { field: { $each: [...], $position: n, $slice: n, $sort: spec } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/push/
//
// Example:
//
//	u := gmqb.NewUpdate().PushWithOpts("scores", gmqb.PushOpts{
//	    Each:  []interface{}{89, 92, 78},
//	    Slice: intPtr(-5), // keep only the last 5
//	    Sort:  bson.D{{"score", -1}},
//	})
func (u Updater) PushWithOpts(field string, opts PushOpts) Updater {
	modifier := bson.D{{Key: opEach, Value: bson.A(opts.Each)}}
	if opts.Position != nil {
		modifier = append(modifier, bson.E{Key: opPosition, Value: *opts.Position})
	}
	if opts.Slice != nil {
		modifier = append(modifier, bson.E{Key: opSlice, Value: *opts.Slice})
	}
	if opts.Sort != nil {
		modifier = append(modifier, bson.E{Key: opSort, Value: opts.Sort})
	}
	return u.addOp(opPush, field, modifier)
}

// --- Bitwise Update Operator ---

// BitAnd ANDs an integer field with value.
//
// MongoDB equivalent:
//
//	{ $bit: { field: { and: value } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/bit/
func (u Updater) BitAnd(field string, value int64) Updater {
	return u.addOp(opBit, field, bson.D{{Key: "and", Value: value}})
}

// BitOr ORs an integer field with value.
//
// MongoDB equivalent:
//
//	{ $bit: { field: { or: value } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/bit/
func (u Updater) BitOr(field string, value int64) Updater {
	return u.addOp(opBit, field, bson.D{{Key: "or", Value: value}})
}

// BitXor XORs an integer field with value.
//
// MongoDB equivalent:
//
//	{ $bit: { field: { xor: value } } }
//
// See: https://www.mongodb.com/docs/manual/reference/operator/update/bit/
func (u Updater) BitXor(field string, value int64) Updater {
	return u.addOp(opBit, field, bson.D{{Key: "xor", Value: value}})
}
