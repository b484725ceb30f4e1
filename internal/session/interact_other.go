//go:build !unix

package session

import "context"

// Interact is not available without pseudoterminals.
func (s *Session) Interact(context.Context, Interactive) error {
	return ErrUnsupportedPlatform
}
