package wire

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/squall-chua/mongofacade/validate"
)

func postJSON(t *testing.T, h http.Handler, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRPCInsertThenFindRoundTrips(t *testing.T) {
	engine := newTestEngine(t)
	router := NewRPCRouter(engine, RPCConfig{}, nil)

	insertBody := validate.InsertRequest{
		DB:         "shop",
		Collection: "orders",
		Documents:  []json.RawMessage{json.RawMessage(`{"sku":"abc","qty":3}`)},
	}
	rec := postJSON(t, router, "/insert", insertBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var insertResp insertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &insertResp))
	assert.Equal(t, 1, insertResp.InsertedCount)

	findBody := validate.FindRequest{
		DB:         "shop",
		Collection: "orders",
		Filter:     []byte(`{"sku":"abc"}`),
	}
	rec = postJSON(t, router, "/find", findBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var findResp findResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &findResp))
	require.Len(t, findResp.Documents, 1)

	var doc bson.D
	require.NoError(t, bson.UnmarshalExtJSON(findResp.Documents[0], true, &doc))
	assert.Equal(t, "abc", fieldOf(doc, "sku"))
}

func TestRPCFindValidationError(t *testing.T) {
	router := NewRPCRouter(newTestEngine(t), RPCConfig{}, nil)

	rec := postJSON(t, router, "/find", validate.FindRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRPCRequiresBearerTokenWhenAuthEnabled(t *testing.T) {
	cfg := RPCConfig{AuthEnabled: true, JWTSecret: "test-secret"}
	router := NewRPCRouter(newTestEngine(t), cfg, nil)

	findBody := validate.FindRequest{DB: "shop", Collection: "orders"}

	rec := postJSON(t, router, "/find", findBody, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	rec = postJSON(t, router, "/find", findBody, map[string]string{"Authorization": "Bearer " + signed})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRPCHealthDoesNotRequireAuth(t *testing.T) {
	router := NewRPCRouter(newTestEngine(t), RPCConfig{AuthEnabled: true, JWTSecret: "secret"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
