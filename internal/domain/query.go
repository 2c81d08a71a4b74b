package domain

import (
	"fmt"
	"strings"
)

// Query identifies one requested stream for one panel target.
type Query struct {
	RefID  string `json:"refId"`
	Hide   bool   `json:"hide,omitempty"`
	Stream string `json:"stream"`
}

// Scope is the first segment of a live channel address.
type Scope string

// ScopeDataSource addresses channels owned by a data source instance.
const ScopeDataSource Scope = "ds"

// Address locates a live channel: scope, data source instance id, stream path.
type Address struct {
	Scope     Scope
	Namespace string
	Path      string
}

// String renders the address in its channel form, e.g. "ds/abc123/orcastream".
func (a Address) String() string {
	return string(a.Scope) + "/" + a.Namespace + "/" + a.Path
}

// ParseAddress parses the channel form produced by Address.String. The path may itself
// contain slashes.
func ParseAddress(channel string) (Address, error) {
	parts := strings.SplitN(channel, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Address{}, fmt.Errorf("invalid channel %q: want scope/namespace/path", channel)
	}
	return Address{Scope: Scope(parts[0]), Namespace: parts[1], Path: parts[2]}, nil
}
