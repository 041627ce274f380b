package transport

import (
	"context"
	"fmt"
	"os"
)

// FileTransport exchanges sealed payloads as files, for syncing over
// removable media or a shared directory. Each side writes its envelope to
// its send path and reads the peer's from its receive path; the user (or
// a cron job) moves the files between devices.
type FileTransport struct {
	sendPath string
	recvPath string
}

// NewFile creates a file transport writing to sendPath and reading from
// recvPath.
func NewFile(sendPath, recvPath string) *FileTransport {
	return &FileTransport{sendPath: sendPath, recvPath: recvPath}
}

// Send writes the payload to the send path.
func (t *FileTransport) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := os.WriteFile(t.sendPath, payload, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrTransport, t.sendPath, err)
	}
	return nil
}

// Receive reads the peer's payload from the receive path. A missing file
// means the peer's half has not arrived yet.
func (t *FileTransport) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	data, err := os.ReadFile(t.recvPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrTransport, t.recvPath, err)
	}
	return data, nil
}
