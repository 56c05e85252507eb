package allowlist

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// document is the on-disk allow-list format.
type document struct {
	AllowedIPs []string `json:"allowed_ips"`
	UpdatedAt  string   `json:"updated_at"`
}

// Set is an immutable set of IP address strings.
type Set struct {
	ips       map[string]struct{}
	updatedAt string
}

// NewSet builds a Set from ips. Duplicates are collapsed.
func NewSet(ips []string, updatedAt string) *Set {
	s := &Set{ips: make(map[string]struct{}, len(ips)), updatedAt: updatedAt}
	for _, ip := range ips {
		s.ips[ip] = struct{}{}
	}
	return s
}

// Contains reports whether ip is in the set. The comparison is on the exact
// string form.
func (s *Set) Contains(ip string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ips[ip]
	return ok
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ips)
}

// UpdatedAt returns the document's updated_at field, or "unknown".
func (s *Set) UpdatedAt() string {
	if s == nil || s.updatedAt == "" {
		return "unknown"
	}
	return s.updatedAt
}

// Parse decodes an allow-list document.
func Parse(data []byte) (*Set, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse allow-list: %w", err)
	}
	return NewSet(doc.AllowedIPs, doc.UpdatedAt), nil
}

// Load reads and decodes the allow-list document at path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read allow-list: %w", err)
	}
	return Parse(data)
}
