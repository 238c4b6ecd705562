package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/morabah/posalpro-sync/repository"
)

// ErrStaleCursor marks a token that no longer decodes to a usable position.
// The row it referenced may have been deleted since the previous page was
// served, so callers treat it as end-of-results, never as a fatal error.
var ErrStaleCursor = errors.New("cursor: stale or malformed token")

// Encode packs a keyset position into the opaque token clients round-trip
// verbatim. The encoding is an implementation detail; clients must never
// parse or construct tokens.
func Encode(pos repository.Position) string {
	raw, err := json.Marshal(pos)
	if err != nil {
		// Position carries only primitives; marshal cannot fail in practice.
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode unpacks a client-supplied token. Any decode failure wraps
// ErrStaleCursor.
func Decode(token string) (repository.Position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return repository.Position{}, fmt.Errorf("%w: %v", ErrStaleCursor, err)
	}
	var pos repository.Position
	if err := json.Unmarshal(raw, &pos); err != nil {
		return repository.Position{}, fmt.Errorf("%w: %v", ErrStaleCursor, err)
	}
	if pos.ID == "" {
		return repository.Position{}, fmt.Errorf("%w: empty position", ErrStaleCursor)
	}
	return pos, nil
}
