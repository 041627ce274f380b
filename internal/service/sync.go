// Package service provides the business logic of the sync server,
// delegating persistence to repository interfaces.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/atinyakov/TaskSync/internal/codec"
	"github.com/atinyakov/TaskSync/internal/models"
	"github.com/atinyakov/TaskSync/internal/replica"
	"github.com/atinyakov/TaskSync/internal/session"
)

// ReplicaRepository defines the persistence operations needed by the
// SyncService. The server is itself a replica; its task set lives in the
// database, tombstones included.
type ReplicaRepository interface {
	// LoadTasks returns every task row, keyed by id.
	LoadTasks(ctx context.Context) (map[string]models.Task, error)
	// SaveTasks upserts the given task set transactionally.
	SaveTasks(ctx context.Context, tasks map[string]models.Task) error
}

// SyncService merges incoming client envelopes into the server replica.
type SyncService struct {
	repo      ReplicaRepository
	codec     *codec.Codec
	replicaID string
	log       *zap.Logger
}

// NewSyncService constructs a SyncService. The codec holds the key derived
// from the server's credential; replicaID is the server replica's identity.
func NewSyncService(repo ReplicaRepository, c *codec.Codec, replicaID string, log *zap.Logger) *SyncService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncService{repo: repo, codec: c, replicaID: replicaID, log: log}
}

// bufferTransport adapts one already-received payload and a response
// buffer to the session.Transport contract, so the HTTP handler can run
// the passive half of a session over a request/response pair.
type bufferTransport struct {
	in  []byte
	out []byte
}

func (b *bufferTransport) Receive(context.Context) ([]byte, error) { return b.in, nil }

func (b *bufferTransport) Send(_ context.Context, payload []byte) error {
	b.out = payload
	return nil
}

// Sync opens the incoming envelope, merges it into the server replica,
// persists the result, and returns the reconciled envelope for the client.
// The database is written only after the full decrypt-merge pipeline has
// succeeded; any earlier failure leaves the server replica untouched.
func (s *SyncService) Sync(ctx context.Context, incoming []byte) ([]byte, *session.Report, error) {
	tasks, err := s.repo.LoadTasks(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load server replica: %w", err)
	}
	store := replica.New(s.replicaID, nil)
	store.ReplaceAll(tasks)

	buf := &bufferTransport{in: incoming}
	sess := session.New(store, s.codec, buf,
		session.WithLogger(s.log),
		session.WithSaver(func(st *replica.Store) error {
			return s.repo.SaveTasks(ctx, st.All())
		}),
	)

	report, err := sess.Respond(ctx)
	if err != nil {
		return nil, report, err
	}
	return buf.out, report, nil
}
