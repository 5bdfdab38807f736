package types

// CachedProfile wraps profile data for serialization. NotFound records a
// lookup that found no kind-0 event.
type CachedProfile struct {
	Profile   *ProfileInfo `json:"profile,omitempty"`
	FetchedAt int64        `json:"fetched_at"`
	NotFound  bool         `json:"not_found"`
}
