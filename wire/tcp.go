package wire

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"io"
	"net"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	gmqb "github.com/squall-chua/mongofacade"
	"github.com/squall-chua/mongofacade/auth"
	"github.com/squall-chua/mongofacade/executor"
	"github.com/squall-chua/mongofacade/logging"
)

// maxDocumentBytes mirrors mongod's default maxBsonObjectSize.
const maxDocumentBytes = 16 * 1024 * 1024

// maxMessageBytes mirrors mongod's default maxMessageSizeBytes; a frame
// whose declared length exceeds this is rejected before it's read.
const maxMessageBytes = 48 * 1024 * 1024

// Server accepts length-prefixed BSON command documents over net.Conn and
// dispatches each one to the executor. A single connection carries many
// sequential requests; there is no interleaving within a connection, so one
// goroutine per connection is enough.
type Server struct {
	engine         *executor.Engine
	authSrv        *auth.Server
	tlsConfig      *tls.Config
	logger         *logging.Logger
	drainer        *Drainer
	maxWireVersion int
}

// NewServer builds a Server. authSrv may be nil, in which case every
// connection is treated as already authenticated. tlsCfg.Enabled == false
// leaves the listener in plaintext.
func NewServer(engine *executor.Engine, authSrv *auth.Server, tlsCfg TLSConfig, logger *logging.Logger) (*Server, error) {
	tc, err := tlsCfg.Build()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{
		engine:         engine,
		authSrv:        authSrv,
		tlsConfig:      tc,
		logger:         logger,
		drainer:        NewDrainer(),
		maxWireVersion: 17,
	}, nil
}

// Drainer exposes the connection-draining tracker so a caller can stop
// accepting new connections and wait for in-flight ones to finish.
func (s *Server) Drainer() *Drainer { return s.drainer }

// Serve accepts connections from l until ctx is canceled or the Drainer
// starts draining. It never returns a non-nil error for either of those
// two shutdown paths.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	if s.tlsConfig != nil {
		l = tls.NewListener(l, s.tlsConfig)
	}
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if s.drainer.IsDraining() {
				return nil
			}
			return gmqb.NewError(gmqb.KindConnection, err, "accept wire connection")
		}
		if !s.drainer.Add() {
			conn.Close()
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// connSession is the per-connection authentication state. A connSession is
// never shared across goroutines: each connection is served by exactly one.
type connSession struct {
	authenticated bool
	conv          *auth.Conversation
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.drainer.Done()
	defer conn.Close()

	log := s.logger.WithOperation("wire-conn")
	sess := &connSession{authenticated: s.authSrv == nil}

	for {
		cmd, err := readMessage(conn)
		if err != nil {
			if err != io.EOF {
				log.Warn("wire read failed", "error", err, "remote", conn.RemoteAddr())
			}
			return
		}

		reply := s.dispatch(ctx, sess, cmd)
		if err := writeMessage(conn, reply); err != nil {
			log.Warn("wire write failed", "error", err, "remote", conn.RemoteAddr())
			return
		}
	}
}

// dispatch decodes the command name (the key of the command document's
// first element, per wire convention), enforces the unauthenticated-command
// allowlist, and runs the matching handler.
func (s *Server) dispatch(ctx context.Context, sess *connSession, cmd bson.D) bson.D {
	if len(cmd) == 0 {
		return errReply(gmqb.NewError(gmqb.KindInvalidOperation, nil, "empty command document"))
	}
	name := strings.ToLower(cmd[0].Key)

	if s.authSrv != nil && !sess.authenticated && !unauthenticatedCommands[name] {
		return errReply(gmqb.NewError(gmqb.KindInvalidOperation, nil, "%s requires authentication", cmd[0].Key))
	}

	handler, ok := commandTable[name]
	if !ok {
		return errReply(gmqb.NewError(gmqb.KindInvalidOperation, nil, "no such command: %s", cmd[0].Key))
	}

	body, err := handler(ctx, s, sess, cmd)
	if err != nil {
		return errReply(err)
	}
	return append(body, bson.E{Key: "ok", Value: 1})
}

func errReply(err error) bson.D {
	return bson.D{
		{Key: "ok", Value: 0},
		{Key: "errmsg", Value: err.Error()},
		{Key: "codeName", Value: gmqb.KindOf(err).String()},
	}
}

// readMessage reads one BSON document off conn. BSON documents are
// self-framed: their first four bytes are their own little-endian int32
// length, so there is no separate header to parse; we just read that
// length and then the rest of the document.
func readMessage(conn net.Conn) (bson.D, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	length := int32(binary.LittleEndian.Uint32(lenBuf[:]))
	if length < 5 || int(length) > maxMessageBytes {
		return nil, gmqb.NewError(gmqb.KindInvalidOperation, nil, "invalid message length %d", length)
	}

	buf := make([]byte, length)
	copy(buf[:4], lenBuf[:])
	if _, err := io.ReadFull(conn, buf[4:]); err != nil {
		return nil, err
	}

	var doc bson.D
	if err := bson.Unmarshal(buf, &doc); err != nil {
		return nil, gmqb.NewError(gmqb.KindInvalidOperation, err, "decode command document")
	}
	return doc, nil
}

func writeMessage(conn net.Conn, doc bson.D) error {
	buf, err := bson.Marshal(doc)
	if err != nil {
		return gmqb.NewError(gmqb.KindInternal, err, "encode reply document")
	}
	_, err = conn.Write(buf)
	return err
}
