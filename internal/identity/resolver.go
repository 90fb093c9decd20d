package identity

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Resolved is the output of resolving a textual identifier: a hex pubkey
// plus any relay hints the identifier itself carried (nprofile entities can
// embed them).
type Resolved struct {
	Pubkey     string
	HintRelays []string
}

// Resolver decodes a textual identifier — npub or nprofile — into a hex
// pubkey and optional hint relays. The engine never parses the identifier
// itself; this is the default implementation of that external collaborator.
type Resolver struct{}

// NewResolver constructs a default Resolver.
func NewResolver() *Resolver { return &Resolver{} }

// Resolve decodes identifier, which must be a bech32 npub1... or nprofile1...
// string.
func (r *Resolver) Resolve(identifier string) (*Resolved, error) {
	prefix, data, err := nip19.Decode(identifier)
	if err != nil {
		return nil, fmt.Errorf("resolve identifier: %w", err)
	}

	switch prefix {
	case "npub":
		pubkey, ok := data.(string)
		if !ok {
			return nil, fmt.Errorf("resolve identifier: unexpected npub payload type")
		}
		return &Resolved{Pubkey: pubkey}, nil

	case "nprofile":
		pointer, ok := data.(nostr.ProfilePointer)
		if !ok {
			return nil, fmt.Errorf("resolve identifier: unexpected nprofile payload type")
		}
		return &Resolved{Pubkey: pointer.PublicKey, HintRelays: pointer.Relays}, nil

	default:
		return nil, fmt.Errorf("resolve identifier: unsupported prefix %q", prefix)
	}
}
