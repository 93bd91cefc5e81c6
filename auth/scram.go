package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"

	"github.com/xdg-go/scram"

	gmqb "github.com/squall-chua/mongofacade"
)

// Server runs SCRAM-SHA-256 conversations against a Store.
type Server struct {
	store Store
}

// NewServer builds a Server backed by store.
func NewServer(store Store) *Server {
	return &Server{store: store}
}

// NewConversation starts a fresh saslStart/saslContinue exchange.
func (s *Server) NewConversation(ctx context.Context) (*Conversation, error) {
	srv, err := scram.SHA256.NewServer(lookupFunc(ctx, s.store))
	if err != nil {
		return nil, gmqb.NewError(gmqb.KindInternal, err, "build scram server")
	}
	return &Conversation{conv: srv.NewConversation()}, nil
}

// Conversation is one client's in-progress or completed SCRAM exchange.
type Conversation struct {
	conv *scram.ServerConversation
}

// Step feeds the client's saslStart/saslContinue payload and returns the
// server's reply. done is true once the exchange has finished; the caller
// must still check err to tell success from authentication failure.
func (c *Conversation) Step(payload string) (reply string, done bool, err error) {
	if c.conv.Done() {
		return "", true, ErrConversationDone
	}
	reply, err = c.conv.Step(payload)
	if err != nil {
		return "", c.conv.Done(), gmqb.NewError(gmqb.KindInvalidOperation, err, "scram step")
	}
	return reply, c.conv.Done(), nil
}

// Valid reports whether the completed conversation authenticated
// successfully.
func (c *Conversation) Valid() bool {
	return c.conv.Valid()
}

// Username returns the username the client presented, once known.
func (c *Conversation) Username() string {
	return c.conv.Username()
}

// lookupFunc adapts a Store to scram.CredentialLookup. An unknown username
// never surfaces as a distinct error path: it gets a deterministic, fake
// credential record instead, so the saslStart response looks the same shape
// whether or not the account exists.
func lookupFunc(ctx context.Context, store Store) scram.CredentialLookup {
	return func(username string) (scram.StoredCredentials, error) {
		creds, ok, err := store.Lookup(ctx, username)
		if err != nil {
			return scram.StoredCredentials{}, err
		}
		if !ok {
			return fakeCredentials(username), nil
		}
		return scram.StoredCredentials{
			KeyFactors: scram.KeyFactors{Salt: string(creds.Salt), Iters: creds.IterationCount},
			StoredKey:  creds.StoredKey,
			ServerKey:  creds.ServerKey,
		}, nil
	}
}

func fakeCredentials(username string) scram.StoredCredentials {
	h := sha256.Sum256([]byte("mongofacade-unknown-user:" + username))
	return scram.StoredCredentials{
		KeyFactors: scram.KeyFactors{Salt: string(h[:16]), Iters: DefaultIterationCount},
		StoredKey:  h[:32],
		ServerKey:  h[:32],
	}
}

// GenerateCredentials derives a Credentials record for username/password,
// for provisioning a new user or rotating a password.
func GenerateCredentials(db, username, password string) (Credentials, error) {
	client, err := scram.SHA256.NewClient(username, password, "")
	if err != nil {
		return Credentials{}, gmqb.NewError(gmqb.KindInvalidArgument, err, "build scram client")
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return Credentials{}, gmqb.NewError(gmqb.KindInternal, err, "generate salt")
	}
	kf := scram.KeyFactors{Salt: string(salt), Iters: DefaultIterationCount}
	sc := client.GetStoredCredentials(kf)
	return Credentials{
		Username:       username,
		DB:             db,
		Salt:           salt,
		StoredKey:      sc.StoredKey,
		ServerKey:      sc.ServerKey,
		IterationCount: DefaultIterationCount,
	}, nil
}
