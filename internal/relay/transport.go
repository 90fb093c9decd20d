// Package relay implements the Relay Transport and Relay Pool: one logical
// websocket connection per relay URL, and the pool that multiplexes
// subscriptions and publications across a target set while maintaining the
// sighting index.
package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/relaysync/nip65sync/internal/ops"
)

// CloseReason distinguishes a caller-initiated (cooperative) subscription
// close from anything else.
type CloseReason string

const (
	// CloseCooperative marks a close the caller itself requested.
	CloseCooperative CloseReason = "cooperative"
	// CloseUnexpected marks any close the transport did not ask for.
	CloseUnexpected CloseReason = "unexpected"
)

// ConnectFailedError is returned by Open when the underlying handshake
// fails for any reason (refusal, TLS failure, timeout).
type ConnectFailedError struct {
	URL    string
	Reason string
}

func (e *ConnectFailedError) Error() string {
	return fmt.Sprintf("connect failed for %s: %s", e.URL, e.Reason)
}

// PublishOutcome is the result of one Publish call.
type PublishOutcome int

const (
	// PublishAccepted means the relay acknowledged the event.
	PublishAccepted PublishOutcome = iota
	// PublishRejected means the relay sent a negative acknowledgment.
	PublishRejected
	// PublishTimedOut means no acknowledgment arrived before the deadline.
	PublishTimedOut
)

// StreamEvent is one item delivered by a Subscribe stream: exactly one of
// Event, EOSE, or Closed is set.
type StreamEvent struct {
	Event  *nostr.Event
	EOSE   bool
	Closed *CloseReason
}

// AuthPolicy decides whether the transport should respond to a relay's
// NIP-42 authentication challenge. It is the sole predicate named in the
// engine's external-interfaces contract.
type AuthPolicy func(relayURL, challenge string) bool

// NeverAuth never responds to an auth challenge.
func NeverAuth(string, string) bool { return false }

// AlwaysAuth always attempts to respond to an auth challenge.
func AlwaysAuth(string, string) bool { return true }

// Signer signs an unsigned event template, used only when AuthPolicy
// approves responding to a challenge.
type Signer interface {
	Sign(ctx context.Context, unsigned *nostr.Event) (*nostr.Event, error)
}

// Transport owns one connection to one relay URL.
type Transport struct {
	url        string
	authPolicy AuthPolicy
	signer     Signer
	logger     *ops.Logger

	mu     sync.Mutex
	relay  *nostr.Relay
	closed bool
}

// NewTransport constructs a Transport for a relay URL. It does not connect
// until Open is called.
func NewTransport(url string, policy AuthPolicy, signer Signer) *Transport {
	if policy == nil {
		policy = NeverAuth
	}
	return &Transport{url: url, authPolicy: policy, signer: signer, logger: ops.Default()}
}

// SetLogger overrides the transport's logger. A nil logger is ignored.
func (t *Transport) SetLogger(l *ops.Logger) {
	if l != nil {
		t.logger = l
	}
}

// URL returns the transport's normalized relay URL.
func (t *Transport) URL() string { return t.url }

// Open establishes the connection.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := nostr.RelayConnect(ctx, t.url)
	if err != nil {
		t.logger.LogRelayConnection(t.url, false, err)
		return &ConnectFailedError{URL: t.url, Reason: err.Error()}
	}
	t.relay = r
	t.logger.LogRelayConnection(t.url, true, nil)
	return nil
}

// IsConnected reports whether the transport currently holds a live
// connection.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.relay != nil && t.relay.IsConnected()
}

// Subscribe opens a subscription against filter and streams results on the
// returned channel until the subscription ends (cooperatively or not) or
// ctx is cancelled. The channel is closed when the stream ends.
//
// If the relay closes the subscription with a "auth-required:" reason, and
// authPolicy approves responding for this challenge, Subscribe performs the
// NIP-42 handshake via signer and resubscribes once before giving up (spec
// §4.1 auth-challenge operation).
func (t *Transport) Subscribe(ctx context.Context, filter nostr.Filter) (<-chan StreamEvent, error) {
	t.mu.Lock()
	r := t.relay
	t.mu.Unlock()
	if r == nil {
		return nil, fmt.Errorf("transport %s: not open", t.url)
	}

	out := make(chan StreamEvent, 32)
	go t.runSubscription(ctx, r, filter, out)
	return out, nil
}

func (t *Transport) runSubscription(ctx context.Context, r *nostr.Relay, filter nostr.Filter, out chan StreamEvent) {
	defer close(out)
	authAttempted := false

resubscribe:
	sub, err := r.Subscribe(ctx, nostr.Filters{filter})
	if err != nil {
		cr := CloseUnexpected
		out <- StreamEvent{Closed: &cr}
		return
	}

	// eose is nilled out after firing once so this select does not spin:
	// a closed channel is always ready to receive, and the subscription
	// stays open past EOSE (spec §4.1), so the case would otherwise fire
	// on every loop iteration forever.
	eose := sub.EndOfStoredEvents
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			out <- StreamEvent{Event: ev}
		case <-eose:
			eose = nil
			out <- StreamEvent{EOSE: true}
		case reason, ok := <-sub.ClosedReason:
			if !ok || reason == "" {
				cr := CloseCooperative
				out <- StreamEvent{Closed: &cr}
				return
			}
			if !authAttempted && strings.HasPrefix(reason, "auth-required:") && t.signer != nil && t.authPolicy(t.url, reason) {
				authAttempted = true
				if authErr := r.Auth(ctx, t.signAuthEvent(ctx)); authErr == nil {
					goto resubscribe
				}
			}
			cr := CloseUnexpected
			out <- StreamEvent{Closed: &cr}
			return
		case <-ctx.Done():
			cr := CloseCooperative
			out <- StreamEvent{Closed: &cr}
			return
		}
	}
}

// signAuthEvent adapts the transport's Signer to the sign-in-place callback
// go-nostr's Relay.Auth expects.
func (t *Transport) signAuthEvent(ctx context.Context) func(*nostr.Event) error {
	return func(unsigned *nostr.Event) error {
		signed, err := t.signer.Sign(ctx, unsigned)
		if err != nil {
			return err
		}
		*unsigned = *signed
		return nil
	}
}

// Publish sends event and awaits the relay's per-event acknowledgment.
func (t *Transport) Publish(ctx context.Context, event *nostr.Event) (PublishOutcome, string, error) {
	t.mu.Lock()
	r := t.relay
	t.mu.Unlock()
	if r == nil {
		return PublishTimedOut, "", fmt.Errorf("transport %s: not open", t.url)
	}

	err := r.Publish(ctx, *event)
	if err == nil {
		return PublishAccepted, "", nil
	}
	if ctx.Err() != nil {
		return PublishTimedOut, "", ctx.Err()
	}
	return PublishRejected, err.Error(), nil
}

// Close cooperatively terminates the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.relay == nil {
		t.closed = true
		return nil
	}
	t.closed = true
	return t.relay.Close()
}
