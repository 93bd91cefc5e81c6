package wire

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func fieldOf(doc bson.D, key string) interface{} {
	for _, e := range doc {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

// dialServer starts srv on a loopback listener and returns a connected
// client conn; both are closed automatically at test cleanup.
func dialServer(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// send writes cmd as a framed BSON command document and decodes the
// framed BSON reply, using the server's own self-describing-length framing
// as a hand-rolled client speaking the same wire format, not the driver.
func send(t *testing.T, conn net.Conn, cmd bson.D) bson.D {
	t.Helper()
	require.NoError(t, writeMessage(conn, cmd))
	reply, err := readMessage(conn)
	require.NoError(t, err)
	return reply
}

func TestTCPHelloDoesNotRequireAuth(t *testing.T) {
	srv, err := NewServer(newTestEngine(t), nil, TLSConfig{}, nil)
	require.NoError(t, err)
	conn := dialServer(t, srv)

	reply := send(t, conn, bson.D{{Key: "hello", Value: 1}})
	assert.EqualValues(t, 1, fieldOf(reply, "ok"))
	assert.Equal(t, true, fieldOf(reply, "ismaster"))
}

func TestTCPInsertThenFindRoundTrips(t *testing.T) {
	engine := newTestEngine(t)
	srv, err := NewServer(engine, nil, TLSConfig{}, nil)
	require.NoError(t, err)
	conn := dialServer(t, srv)

	insertReply := send(t, conn, bson.D{
		{Key: "insert", Value: "orders"},
		{Key: "$db", Value: "shop"},
		{Key: "documents", Value: bson.A{bson.D{{Key: "sku", Value: "abc"}}}},
	})
	require.EqualValues(t, 1, fieldOf(insertReply, "ok"))
	require.EqualValues(t, 1, fieldOf(insertReply, "n"))

	findReply := send(t, conn, bson.D{
		{Key: "find", Value: "orders"},
		{Key: "$db", Value: "shop"},
		{Key: "filter", Value: bson.D{{Key: "sku", Value: "abc"}}},
	})
	require.EqualValues(t, 1, fieldOf(findReply, "ok"))
	cursor, _ := fieldOf(findReply, "cursor").(bson.D)
	require.NotNil(t, cursor)
	batch, _ := fieldOf(cursor, "firstBatch").(bson.A)
	require.Len(t, batch, 1)
}

func TestTCPUnknownCommandReturnsError(t *testing.T) {
	srv, err := NewServer(newTestEngine(t), nil, TLSConfig{}, nil)
	require.NoError(t, err)
	conn := dialServer(t, srv)

	reply := send(t, conn, bson.D{{Key: "notACommand", Value: 1}})
	assert.EqualValues(t, 0, fieldOf(reply, "ok"))
	assert.NotEmpty(t, fieldOf(reply, "errmsg"))
}

func TestTCPGetMorePagesThroughCursor(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := engine.InsertOne(ctx, "shop", "orders", bson.D{{Key: "n", Value: i}})
		require.NoError(t, err)
	}

	srv, err := NewServer(engine, nil, TLSConfig{}, nil)
	require.NoError(t, err)
	conn := dialServer(t, srv)

	findReply := send(t, conn, bson.D{
		{Key: "find", Value: "orders"},
		{Key: "$db", Value: "shop"},
		{Key: "batchSize", Value: int32(2)},
	})
	cursor, _ := fieldOf(findReply, "cursor").(bson.D)
	require.NotNil(t, cursor)
	id, _ := fieldOf(cursor, "id").(string)
	require.NotEmpty(t, id)

	getMoreReply := send(t, conn, bson.D{
		{Key: "getMore", Value: id},
		{Key: "collection", Value: "orders"},
		{Key: "$db", Value: "shop"},
		{Key: "batchSize", Value: int32(2)},
	})
	require.EqualValues(t, 1, fieldOf(getMoreReply, "ok"))
	nextCursor, _ := fieldOf(getMoreReply, "cursor").(bson.D)
	require.NotNil(t, nextCursor)
	batch, _ := fieldOf(nextCursor, "nextBatch").(bson.A)
	assert.NotEmpty(t, batch)
}
