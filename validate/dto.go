package validate

import (
	"encoding/json"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns a shared *validator.Validate instance.
func Validator() *validator.Validate {
	once.Do(func() { instance = validator.New() })
	return instance
}

// FindRequest is the structured-RPC body for a find call.
type FindRequest struct {
	DB         string `json:"db" validate:"required"`
	Collection string `json:"collection" validate:"required"`
	Filter     json.RawMessage `json:"filter,omitempty"`
	Projection json.RawMessage `json:"projection,omitempty"`
	Sort       json.RawMessage `json:"sort,omitempty"`
	Limit      int    `json:"limit,omitempty" validate:"gte=0"`
	Skip       int    `json:"skip,omitempty" validate:"gte=0"`
	BatchSize  int    `json:"batchSize,omitempty" validate:"gte=0"`
	Backend    string `json:"backend,omitempty" validate:"omitempty,oneof=oltp olap"`
}

// InsertRequest is the structured-RPC body for insertOne/insertMany.
type InsertRequest struct {
	DB         string   `json:"db" validate:"required"`
	Collection string   `json:"collection" validate:"required"`
	Documents  []json.RawMessage `json:"documents" validate:"required,min=1"`
}

// UpdateRequest is the structured-RPC body for updateOne/updateMany.
type UpdateRequest struct {
	DB         string `json:"db" validate:"required"`
	Collection string `json:"collection" validate:"required"`
	Filter     json.RawMessage `json:"filter" validate:"required"`
	Update     json.RawMessage `json:"update" validate:"required"`
	Upsert     bool   `json:"upsert,omitempty"`
	Many       bool   `json:"many,omitempty"`
}

// DeleteRequest is the structured-RPC body for deleteOne/deleteMany.
type DeleteRequest struct {
	DB         string `json:"db" validate:"required"`
	Collection string `json:"collection" validate:"required"`
	Filter     json.RawMessage `json:"filter" validate:"required"`
	Many       bool   `json:"many,omitempty"`
}

// AggregateRequest is the structured-RPC body for aggregate.
type AggregateRequest struct {
	DB         string   `json:"db" validate:"required"`
	Collection string   `json:"collection" validate:"required"`
	Pipeline   []json.RawMessage `json:"pipeline" validate:"required,min=1"`
	Backend    string   `json:"backend,omitempty" validate:"omitempty,oneof=oltp olap"`
}

// Struct validates v against its `validate` struct tags.
func Struct(v interface{}) error {
	return Validator().Struct(v)
}
