// Package types provides shared type definitions used across internal packages.
package types

import (
	"encoding/json"
	"sort"
)

// Event kinds used by the payment engine.
const (
	KindMetadata            = 0
	KindZapRequest          = 9734
	KindZapReceipt          = 9735
	KindNWCInfo             = 13194
	KindClientAuth          = 22242
	KindNWCRequest          = 23194
	KindNWCResponse         = 23195
	KindAppSpecificData     = 30078
	KindSubscriptionReceipt = 30079
)

// Event represents a Nostr event (NIP-01)
type Event struct {
	ID         string     `json:"id"`
	PubKey     string     `json:"pubkey"`
	CreatedAt  int64      `json:"created_at"`
	Kind       int        `json:"kind"`
	Tags       [][]string `json:"tags"`
	Content    string     `json:"content"`
	Sig        string     `json:"sig"`
	RelaysSeen []string   `json:"-"`
}

// Filter represents a Nostr subscription filter (NIP-01)
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Limit   int
	Since   *int64
	Until   *int64
	ETags   []string // #e tag filter (event references)
	PTags   []string // #p tag filter (mentions)
	ATags   []string // #a tag filter (addressable events)
	DTags   []string // #d tag filter (d-tag for addressable events)
}

// MarshalJSON renders the filter in the NIP-01 wire shape, omitting empty fields.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{}
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if len(f.ETags) > 0 {
		m["#e"] = f.ETags
	}
	if len(f.PTags) > 0 {
		m["#p"] = f.PTags
	}
	if len(f.ATags) > 0 {
		m["#a"] = f.ATags
	}
	if len(f.DTags) > 0 {
		m["#d"] = f.DTags
	}
	return json.Marshal(m)
}

// Matches reports whether evt satisfies the filter. Limit is ignored.
func (f Filter) Matches(evt *Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, evt.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, evt.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if k == evt.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since != nil && evt.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && evt.CreatedAt > *f.Until {
		return false
	}
	for name, want := range map[string][]string{"e": f.ETags, "p": f.PTags, "a": f.ATags, "d": f.DTags} {
		if len(want) == 0 {
			continue
		}
		ok := false
		for _, v := range TagValues(evt.Tags, name) {
			if containsString(want, v) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// SortNewestFirst orders events by created_at descending, ties broken by id.
func SortNewestFirst(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID > events[j].ID
	})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// NostrMessage represents a raw Nostr protocol message
type NostrMessage []interface{}
