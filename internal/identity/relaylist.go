// Package identity parses NIP-65 relay list documents and resolves textual
// identifiers into hex pubkeys — the two external collaborators the sync
// engine relies on without implementing itself.
package identity

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// Role is the relay descriptor's role marker, derived once from the NIP-65
// tag structure and never mutated during a sync run.
type Role int

const (
	// RoleWriteOnly marks a relay the user publishes to but does not read from.
	RoleWriteOnly Role = iota
	// RoleReadOnly marks a relay the user reads from but does not publish to.
	RoleReadOnly
	// RoleReadWrite marks a relay used for both.
	RoleReadWrite
)

func (r Role) String() string {
	switch r {
	case RoleWriteOnly:
		return "write-only"
	case RoleReadOnly:
		return "read-only"
	case RoleReadWrite:
		return "read+write"
	default:
		return "unknown"
	}
}

// CanWrite reports whether events authored by the user belong on this relay.
func (r Role) CanWrite() bool { return r == RoleWriteOnly || r == RoleReadWrite }

// CanRead reports whether events mentioning the user should be found here.
func (r Role) CanRead() bool { return r == RoleReadOnly || r == RoleReadWrite }

// RelayDescriptor is a normalized relay URL plus its role.
type RelayDescriptor struct {
	URL  string
	Role Role
}

// RelayList is the parsed form of a kind 10002 NIP-65 event.
type RelayList struct {
	Pubkey string
	Relays []RelayDescriptor
}

// WriteRelays returns the URLs with CanWrite() true, in declaration order.
func (l RelayList) WriteRelays() []string {
	return l.filter(Role.CanWrite)
}

// ReadRelays returns the URLs with CanRead() true, in declaration order.
func (l RelayList) ReadRelays() []string {
	return l.filter(Role.CanRead)
}

func (l RelayList) filter(pred func(Role) bool) []string {
	out := make([]string, 0, len(l.Relays))
	for _, d := range l.Relays {
		if pred(d.Role) {
			out = append(out, d.URL)
		}
	}
	return out
}

const nip65Kind = 10002

// ParseRelayList extracts the write/read relay set from a kind 10002 event.
// Each "r" tag is `["r", <url>]` (read+write) or `["r", <url>, "read"|"write"]`.
func ParseRelayList(event *nostr.Event) (*RelayList, error) {
	if event == nil {
		return nil, fmt.Errorf("parse relay list: nil event")
	}
	if event.Kind != nip65Kind {
		return nil, fmt.Errorf("parse relay list: expected kind %d, got %d", nip65Kind, event.Kind)
	}

	list := &RelayList{Pubkey: event.PubKey}
	for _, tag := range event.Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		url := strings.TrimSpace(tag[1])
		if url == "" || !nostr.IsValidRelayURL(url) {
			continue
		}

		role := RoleReadWrite
		if len(tag) >= 3 {
			switch strings.ToLower(strings.TrimSpace(tag[2])) {
			case "write":
				role = RoleWriteOnly
			case "read":
				role = RoleReadOnly
			}
		}

		list.Relays = append(list.Relays, RelayDescriptor{URL: normalizeRelayURL(url), Role: role})
	}

	return list, nil
}

func normalizeRelayURL(url string) string {
	return strings.TrimRight(url, "/")
}
