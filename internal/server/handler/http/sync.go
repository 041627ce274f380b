package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atinyakov/TaskSync/internal/codec"
	"github.com/atinyakov/TaskSync/internal/middleware"
	"github.com/atinyakov/TaskSync/internal/replica"
	"github.com/atinyakov/TaskSync/internal/session"
)

// maxEnvelopeSize bounds incoming envelope bodies.
const maxEnvelopeSize = 32 << 20

// SyncService defines the synchronization operation required by the
// SyncHandler.
type SyncService interface {
	// Sync merges the incoming sealed payload into the server replica and
	// returns the reconciled sealed payload.
	Sync(ctx context.Context, incoming []byte) ([]byte, *session.Report, error)
}

// SyncHandler handles sync requests over plain HTTP and websocket.
type SyncHandler struct {
	SyncService SyncService
	Log         *zap.Logger

	// ReplicaSalt is the server replica's credential salt, served to
	// clients so every replica derives the same key from the shared
	// credential.
	ReplicaSalt []byte

	upgrader websocket.Upgrader
}

// Sync handles POST /api/sync. The body is the client's sealed envelope;
// the response body is the reconciled envelope.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeSize))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	out, report, err := h.SyncService.Sync(r.Context(), body)
	if err != nil {
		h.writeSyncError(w, err)
		return
	}
	h.logReconciled(r.Context(), report)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

// Salt handles GET /api/sync/salt. The salt is not secret, but it must
// be the same on every replica; clients adopt it before their first key
// derivation. Bearer auth still applies so only registered accounts can
// read it.
func (h *SyncHandler) Salt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Salt []byte `json:"salt"`
	}{Salt: h.ReplicaSalt})
}

// SyncWS handles GET /api/sync/ws, upgrading to a websocket and serving
// one exchange: read the client's envelope, answer with the reconciled
// one.
func (h *SyncHandler) SyncWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	closeDeadline := time.Now().Add(5 * time.Second)

	mt, body, err := conn.ReadMessage()
	if err != nil || mt != websocket.BinaryMessage {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "expected one binary envelope"),
			closeDeadline)
		return
	}

	out, report, err := h.SyncService.Sync(r.Context(), body)
	if err != nil {
		h.logError(err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "sync failed"),
			closeDeadline)
		return
	}
	h.logReconciled(r.Context(), report)
	_ = conn.WriteMessage(websocket.BinaryMessage, out)
}

// writeSyncError maps pipeline failures to HTTP statuses without leaking
// plaintext or distinguishing a wrong credential from corrupted data.
func (h *SyncHandler) writeSyncError(w http.ResponseWriter, err error) {
	h.logError(err)
	switch {
	case errors.Is(err, codec.ErrAuthentication):
		http.Error(w, "cannot authenticate payload", http.StatusBadRequest)
	case errors.Is(err, replica.ErrSerialization):
		http.Error(w, "malformed payload", http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *SyncHandler) logError(err error) {
	if h.Log != nil {
		h.Log.Warn("sync request failed", zap.Error(err))
	}
}

func (h *SyncHandler) logReconciled(ctx context.Context, report *session.Report) {
	if h.Log == nil || report == nil {
		return
	}
	h.Log.Info("sync reconciled",
		zap.String("login", middleware.GetUserFromContext(ctx)),
		zap.String("peer", report.PeerReplicaID),
		zap.Int("applied", len(report.Applied)),
		zap.Int("peer_outdated", len(report.PeerOutdated)),
	)
}
