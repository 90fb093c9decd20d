package syncengine

import "github.com/nbd-wtf/go-nostr"

// Kind numbers the two canonical filters reference (spec §3).
const (
	KindTextNote        = 1
	KindRepost          = 6
	KindReaction        = 7
	KindLongFormArticle = 30023
	KindZapReceipt      = 9735
)

// WriteFilter builds the canonical filter for events authored by pubkey:
// notes, reposts, and long-form articles.
func WriteFilter(pubkey string) nostr.Filter {
	return nostr.Filter{
		Authors: []string{pubkey},
		Kinds:   []int{KindTextNote, KindRepost, KindLongFormArticle},
	}
}

// ReadFilter builds the canonical filter for events mentioning pubkey:
// notes, reposts, reactions, and zap receipts that p-tag the user.
func ReadFilter(pubkey string) nostr.Filter {
	return nostr.Filter{
		Tags:  nostr.TagMap{"p": []string{pubkey}},
		Kinds: []int{KindTextNote, KindRepost, KindReaction, KindZapReceipt},
	}
}
