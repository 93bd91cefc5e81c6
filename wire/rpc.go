package wire

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"

	gmqb "github.com/squall-chua/mongofacade"
	"github.com/squall-chua/mongofacade/backend"
	"github.com/squall-chua/mongofacade/executor"
	"github.com/squall-chua/mongofacade/logging"
	"github.com/squall-chua/mongofacade/router"
	"github.com/squall-chua/mongofacade/validate"
)

// RPCConfig configures the structured HTTP+JSON surface that mirrors the
// wire protocol's command set for clients that would rather speak JSON
// than BSON over a raw socket.
type RPCConfig struct {
	AuthEnabled bool
	JWTSecret   string
}

type rpcServer struct {
	engine *executor.Engine
	logger *logging.Logger
	cfg    RPCConfig
}

// NewRPCRouter builds the chi router serving /find, /insert, /update,
// /delete, /aggregate, and /health. When cfg.AuthEnabled, every route but
// /health requires a Bearer JWT signed with cfg.JWTSecret.
func NewRPCRouter(engine *executor.Engine, cfg RPCConfig, logger *logging.Logger) chi.Router {
	if logger == nil {
		logger = logging.Default()
	}
	s := &rpcServer{engine: engine, logger: logger, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(jsonContentType)

	r.Get("/health", HealthHandler)

	r.Group(func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(s.requireJWT)
		}
		r.Post("/find", s.handleFind)
		r.Post("/insert", s.handleInsert)
		r.Post("/update", s.handleUpdate)
		r.Post("/delete", s.handleDelete)
		r.Post("/aggregate", s.handleAggregate)
	})

	return r
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type claimsContextKey struct{}

// requireJWT validates a Bearer token against cfg.JWTSecret and attaches
// its claims to the request context; it rejects anything signed with a
// non-HMAC algorithm so a token crafted for, say, RS256 can't be replayed
// against an HS256-only deployment.
func (s *rpcServer) requireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, gmqb.NewError(gmqb.KindInvalidOperation, nil, "authentication required"))
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, gmqb.NewError(gmqb.KindInvalidOperation, nil, "unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.JWTSecret), nil
		})
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, gmqb.NewError(gmqb.KindInvalidOperation, err, "invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

type errorBody struct {
	Error    string `json:"error"`
	CodeName string `json:"codeName"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error(), CodeName: gmqb.KindOf(err).String()})
}

// statusFor maps a gmqb.Kind to the HTTP status the RPC surface reports it
// under. The wire protocol has no such mapping to borrow from, since it
// reports every failure the same way (ok: 0, errmsg, codeName).
func statusFor(err error) int {
	switch gmqb.KindOf(err) {
	case gmqb.KindInvalidArgument, gmqb.KindInvalidOperation:
		return http.StatusBadRequest
	case gmqb.KindNotConnected, gmqb.KindConnection:
		return http.StatusServiceUnavailable
	case gmqb.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// parseDoc decodes one extended-JSON document; an empty/nil raw value
// decodes to a nil bson.D rather than an error, since most request fields
// (projection, sort, filter-less updates) are optional.
func parseDoc(raw []byte) (bson.D, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON(raw, true, &d); err != nil {
		return nil, gmqb.NewError(gmqb.KindInvalidArgument, err, "parse extended JSON document")
	}
	return d, nil
}

func docToRawJSON(d bson.D) (json.RawMessage, error) {
	b, err := bson.MarshalExtJSON(d, false, false)
	if err != nil {
		return nil, gmqb.NewError(gmqb.KindInternal, err, "encode extended JSON document")
	}
	return json.RawMessage(b), nil
}

func docsToRawJSON(docs []bson.D) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		raw, err := docToRawJSON(d)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func decodeAndValidate(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return gmqb.NewError(gmqb.KindInvalidArgument, err, "decode request body")
	}
	if err := validate.Struct(v); err != nil {
		return gmqb.NewError(gmqb.KindInvalidArgument, err, "validate request body")
	}
	return nil
}

type findResponse struct {
	Documents []json.RawMessage `json:"documents"`
	CursorID  string            `json:"cursorId,omitempty"`
	HasMore   bool              `json:"hasMore"`
}

func (s *rpcServer) handleFind(w http.ResponseWriter, r *http.Request) {
	var req validate.FindRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	filter, err := parseDoc(req.Filter)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	projection, err := parseDoc(req.Projection)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	sort, err := parseDoc(req.Sort)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.engine.Find(r.Context(), req.DB, req.Collection, backend.FindOptions{
		Filter:      filter,
		Projection:  projection,
		Sort:        sort,
		Limit:       req.Limit,
		Skip:        req.Skip,
		BatchSize:   req.BatchSize,
		BackendHint: router.Backend(req.Backend),
	})
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}

	docs, err := docsToRawJSON(res.Documents)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, findResponse{Documents: docs, CursorID: res.CursorID, HasMore: res.HasMore})
}

type insertResponse struct {
	InsertedCount int `json:"insertedCount"`
}

func (s *rpcServer) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req validate.InsertRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	docs := make([]bson.D, 0, len(req.Documents))
	for _, raw := range req.Documents {
		d, err := parseDoc(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		docs = append(docs, d)
	}

	ids, err := s.engine.InsertMany(r.Context(), req.DB, req.Collection, docs)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, insertResponse{InsertedCount: len(ids)})
}

type updateResponse struct {
	MatchedCount  int64       `json:"matchedCount"`
	ModifiedCount int64       `json:"modifiedCount"`
	UpsertedID    interface{} `json:"upsertedId,omitempty"`
}

func (s *rpcServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req validate.UpdateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	filter, err := parseDoc(req.Filter)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	update, err := parseDoc(req.Update)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	var res backend.UpdateResult
	if req.Many {
		res, err = s.engine.UpdateMany(r.Context(), req.DB, req.Collection, filter, update, req.Upsert)
	} else {
		res, err = s.engine.UpdateOne(r.Context(), req.DB, req.Collection, filter, update, req.Upsert)
	}
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedID:    res.UpsertedID,
	})
}

type deleteResponse struct {
	DeletedCount int64 `json:"deletedCount"`
}

func (s *rpcServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req validate.DeleteRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	filter, err := parseDoc(req.Filter)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	var n int64
	if req.Many {
		n, err = s.engine.DeleteMany(r.Context(), req.DB, req.Collection, filter)
	} else {
		n, err = s.engine.DeleteOne(r.Context(), req.DB, req.Collection, filter)
	}
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{DeletedCount: n})
}

type aggregateResponse struct {
	Documents []json.RawMessage `json:"documents"`
}

func (s *rpcServer) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var req validate.AggregateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	pipeline := make([]bson.D, 0, len(req.Pipeline))
	for _, raw := range req.Pipeline {
		stage, err := parseDoc(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		pipeline = append(pipeline, stage)
	}

	docs, err := s.engine.Aggregate(r.Context(), req.DB, req.Collection, pipeline, router.Backend(req.Backend))
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}

	rawDocs, err := docsToRawJSON(docs)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, aggregateResponse{Documents: rawDocs})
}
