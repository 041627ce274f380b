// Package transport carries sealed sync payloads between replicas.
//
// Transports move opaque bytes only. Confidentiality and integrity come
// from the encryption layer, so a transport is free to be an HTTP round
// trip, a raw websocket, or files on removable media.
package transport

import "errors"

// ErrTransport reports a failure delivering or collecting a payload. The
// payload itself is never at fault here; envelope problems surface from
// the codec instead.
var ErrTransport = errors.New("transport failed")
