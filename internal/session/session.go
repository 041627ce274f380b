// Package session drives one replica-to-replica sync exchange.
//
// A session owns its store exclusively for the duration of the exchange
// and commits only after the full decrypt-merge pipeline has succeeded,
// so a failure at any earlier step leaves the local replica untouched.
package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/atinyakov/TaskSync/internal/codec"
	"github.com/atinyakov/TaskSync/internal/merge"
	"github.com/atinyakov/TaskSync/internal/replica"
)

// Transport carries opaque sealed payloads between replicas. It makes no
// confidentiality promises; those come from the codec. Implementations
// live in internal/transport, with in-memory doubles in tests.
type Transport interface {
	// Send delivers a sealed payload to the peer.
	Send(ctx context.Context, payload []byte) error
	// Receive returns the next sealed payload from the peer.
	Receive(ctx context.Context) ([]byte, error)
}

// State is the phase a sync session is in.
type State int

const (
	// StateIdle is the initial state before the exchange starts.
	StateIdle State = iota
	// StateAwaitingPeerData means the transport exchange is in flight.
	StateAwaitingPeerData
	// StateDecrypting means the peer's envelope is being opened.
	StateDecrypting
	// StateMerging means the decoded stores are being reconciled.
	StateMerging
	// StateReconciled is the terminal success state; the local store holds
	// the merged result.
	StateReconciled
	// StateFailed is the terminal error state; the local store is
	// unchanged.
	StateFailed
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPeerData:
		return "awaiting_peer_data"
	case StateDecrypting:
		return "decrypting"
	case StateMerging:
		return "merging"
	case StateReconciled:
		return "reconciled"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Report summarizes a completed exchange.
type Report struct {
	// PeerReplicaID is the identity the peer claimed in its payload.
	PeerReplicaID string
	// Applied lists ids whose local version changed, sorted.
	Applied []string
	// PeerOutdated lists ids the peer had to update, sorted.
	PeerOutdated []string
}

// Session performs a single sync attempt. Not reusable: create a new one
// per attempt.
type Session struct {
	store *replica.Store
	codec *codec.Codec
	tr    Transport
	log   *zap.Logger
	save  func(*replica.Store) error
	state State
}

// Option configures a Session.
type Option func(*Session)

// WithLogger attaches a structured logger. Default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithSaver registers the durable-persistence hook invoked after the
// in-memory commit. A saver failure is reported but, like a post-commit
// transport failure, does not roll the merge back; re-syncing is the
// recovery path.
func WithSaver(save func(*replica.Store) error) Option {
	return func(s *Session) { s.save = save }
}

// New creates a session around the local store, the codec holding this
// session's derived key, and the transport to the peer.
func New(store *replica.Store, c *codec.Codec, tr Transport, opts ...Option) *Session {
	s := &Session{store: store, codec: c, tr: tr, log: zap.NewNop(), state: StateIdle}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the session's current phase.
func (s *Session) State() State { return s.state }

// Run performs the initiating half of an exchange: seal and send the local
// state, receive the peer's reconciled state, merge it in, and commit.
func (s *Session) Run(ctx context.Context) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail(err)
	}

	out, err := s.sealStore()
	if err != nil {
		return nil, s.fail(err)
	}

	s.state = StateAwaitingPeerData
	if err := s.tr.Send(ctx, out); err != nil {
		return nil, s.fail(fmt.Errorf("send local state: %w", err))
	}
	in, err := s.tr.Receive(ctx)
	if err != nil {
		return nil, s.fail(fmt.Errorf("receive peer state: %w", err))
	}

	report, err := s.mergeIncoming(ctx, in)
	if err != nil {
		if report != nil {
			// Post-commit persistence failure: the merge stands and is
			// safe to re-expose on the next sync.
			return report, err
		}
		return nil, s.fail(err)
	}
	return report, nil
}

// Respond performs the passive half: receive the peer's state, merge it
// into the local store, commit, and send the reconciled state back. The
// reconciled payload is sent only after the local commit; a send failure
// at that point leaves the already-durable merge valid for a re-sync.
func (s *Session) Respond(ctx context.Context) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail(err)
	}

	s.state = StateAwaitingPeerData
	in, err := s.tr.Receive(ctx)
	if err != nil {
		return nil, s.fail(fmt.Errorf("receive peer state: %w", err))
	}

	report, err := s.mergeIncoming(ctx, in)
	if err != nil {
		if report != nil {
			return report, err
		}
		return nil, s.fail(err)
	}

	// The store already holds the reconciled set; re-seal it for the peer.
	out, err := s.sealStore()
	if err != nil {
		return report, fmt.Errorf("seal reconciled state: %w", err)
	}
	if err := s.tr.Send(ctx, out); err != nil {
		return report, fmt.Errorf("send reconciled state: %w", err)
	}
	return report, nil
}

// mergeIncoming runs decrypt, decode, merge, commit on a received
// payload. Nothing touches the store until every prior step has succeeded;
// a non-nil report alongside an error means the commit already happened.
func (s *Session) mergeIncoming(ctx context.Context, in []byte) (*Report, error) {
	s.state = StateDecrypting
	env, err := codec.DecodeEnvelope(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", replica.ErrSerialization, err)
	}
	plain, err := s.codec.Open(env)
	if err != nil {
		return nil, err
	}
	peerID, incoming, err := replica.UnmarshalPayload(plain)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.state = StateMerging
	res := merge.Merge(s.store.All(), incoming)

	// Commit point. Everything before this line left the store untouched.
	s.store.ReplaceAll(res.Tasks)
	s.state = StateReconciled

	report := &Report{
		PeerReplicaID: peerID,
		Applied:       res.LocalChanged,
		PeerOutdated:  res.IncomingChanged,
	}
	s.log.Info("sync reconciled",
		zap.String("peer", peerID),
		zap.Int("applied", len(res.LocalChanged)),
		zap.Int("peer_outdated", len(res.IncomingChanged)),
	)

	if s.save != nil {
		if err := s.save(s.store); err != nil {
			return report, fmt.Errorf("persist reconciled state: %w", err)
		}
	}
	return report, nil
}

// sealStore serializes and seals the current store contents.
func (s *Session) sealStore() ([]byte, error) {
	plain, err := s.store.MarshalPayload()
	if err != nil {
		return nil, err
	}
	env, err := s.codec.Seal(plain)
	if err != nil {
		return nil, err
	}
	return env.Encode()
}

// fail moves the session to its terminal error state. The local store has
// not been modified when this is reached.
func (s *Session) fail(err error) error {
	s.state = StateFailed
	s.log.Warn("sync failed", zap.Error(err))
	return err
}
