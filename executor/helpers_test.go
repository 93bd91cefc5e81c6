package executor

import (
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/require"

	"github.com/squall-chua/mongofacade/backend/oltp"
)

// newBadgerStore opens an oltp.Store over a fresh temp directory per test,
// closing it automatically on cleanup.
func newBadgerStore(t *testing.T) *oltp.Store {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	store, err := oltp.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
