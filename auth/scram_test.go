package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xdg-go/scram"
)

func provisionUser(t *testing.T, store *MemoryStore, db, username, password string) {
	t.Helper()
	creds, err := GenerateCredentials(db, username, password)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), creds))
}

func runClientConversation(t *testing.T, conv *Conversation, username, password string) {
	t.Helper()
	client, err := scram.SHA256.NewClient(username, password, "")
	require.NoError(t, err)
	clientConv := client.NewConversation()

	msg, err := clientConv.Step("")
	require.NoError(t, err)
	for {
		reply, done, stepErr := conv.Step(msg)
		require.NoError(t, stepErr)
		msg, err = clientConv.Step(reply)
		require.NoError(t, err)
		if done {
			break
		}
	}
}

func TestScramAuthenticatesKnownUser(t *testing.T) {
	store := NewMemoryStore()
	provisionUser(t, store, "admin", "alice", "hunter2")

	server := NewServer(store)
	conv, err := server.NewConversation(context.Background())
	require.NoError(t, err)

	runClientConversation(t, conv, "alice", "hunter2")
	assert.True(t, conv.Valid())
	assert.Equal(t, "alice", conv.Username())
}

func TestScramRejectsWrongPassword(t *testing.T) {
	store := NewMemoryStore()
	provisionUser(t, store, "admin", "alice", "hunter2")

	server := NewServer(store)
	conv, err := server.NewConversation(context.Background())
	require.NoError(t, err)

	client, err := scram.SHA256.NewClient("alice", "wrong-password", "")
	require.NoError(t, err)
	clientConv := client.NewConversation()

	msg, err := clientConv.Step("")
	require.NoError(t, err)
	reply, _, err := conv.Step(msg)
	require.NoError(t, err)
	clientFinal, err := clientConv.Step(reply)
	require.NoError(t, err)

	_, _, err = conv.Step(clientFinal)
	assert.Error(t, err)
	assert.False(t, conv.Valid())
}

func TestScramUnknownUserStillRespondsFirst(t *testing.T) {
	store := NewMemoryStore()
	server := NewServer(store)
	conv, err := server.NewConversation(context.Background())
	require.NoError(t, err)

	client, err := scram.SHA256.NewClient("ghost", "whatever", "")
	require.NoError(t, err)
	clientConv := client.NewConversation()

	msg, err := clientConv.Step("")
	require.NoError(t, err)
	reply, done, err := conv.Step(msg)
	require.NoError(t, err)
	assert.False(t, done)
	assert.NotEmpty(t, reply)
}
