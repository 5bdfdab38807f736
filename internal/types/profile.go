package types

import (
	"encoding/json"
	"strings"
)

// ProfileInfo contains user profile metadata (kind 0)
type ProfileInfo struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Nip05       string `json:"nip05,omitempty"`
	About       string `json:"about,omitempty"`
	Lud16       string `json:"lud16,omitempty"`
	Lud06       string `json:"lud06,omitempty"`
}

// ParseProfile decodes kind-0 content. Unknown fields are ignored.
func ParseProfile(content string) (*ProfileInfo, error) {
	var p ProfileInfo
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return nil, err
	}
	p.Lud16 = strings.TrimSpace(p.Lud16)
	p.Lud06 = strings.TrimSpace(p.Lud06)
	return &p, nil
}

// CanReceiveZaps reports whether the profile names a Lightning address or LNURL.
func (p *ProfileInfo) CanReceiveZaps() bool {
	return p != nil && (p.Lud16 != "" || p.Lud06 != "")
}

// PayTarget returns lud16, falling back to lud06.
func (p *ProfileInfo) PayTarget() string {
	if p == nil {
		return ""
	}
	if p.Lud16 != "" {
		return p.Lud16
	}
	return p.Lud06
}
