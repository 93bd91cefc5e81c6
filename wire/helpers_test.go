package wire

import (
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/require"

	"github.com/squall-chua/mongofacade/backend/oltp"
	"github.com/squall-chua/mongofacade/executor"
)

// newTestEngine wires a fresh badger-backed OLTP store, with no OLAP
// backend configured, behind an Engine.
func newTestEngine(t *testing.T) *executor.Engine {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	store, err := oltp.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return executor.New(store, nil)
}
