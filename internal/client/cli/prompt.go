// Package cli holds the interactive pieces of the TaskSync client:
// credential prompts and calls to the server's HTTP API.
package cli

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ErrMismatch is returned when the confirmation prompt does not match.
var ErrMismatch = errors.New("entries do not match")

// ReadSecret prompts for a secret on the terminal without echoing it.
func ReadSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return string(b), nil
}

// ReadSecretConfirmed prompts twice and insists the entries match. Used
// on first run, where a typo in the sync credential would silently
// produce a key no other replica shares.
func ReadSecretConfirmed(prompt string) (string, error) {
	first, err := ReadSecret(prompt)
	if err != nil {
		return "", err
	}
	second, err := ReadSecret("Confirm: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", ErrMismatch
	}
	return first, nil
}
