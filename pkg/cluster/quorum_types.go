package cluster

import (
	"fmt"
	"strings"
)

// WriteConcern is the number of members that must acknowledge a write
// before it is reported as successful
type WriteConcern int

const (
	// One is satisfied by the primary alone
	One WriteConcern = iota
	// Majority is satisfied by ceil((N+1)/2) members
	Majority
	// All is satisfied only when every member holds the write
	All
)

// String returns the string representation of a WriteConcern
func (w WriteConcern) String() string {
	switch w {
	case One:
		return "one"
	case Majority:
		return "majority"
	case All:
		return "all"
	default:
		return "unknown"
	}
}

// ParseWriteConcern accepts the names printed by String, and "w1"
func ParseWriteConcern(s string) (WriteConcern, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "one", "w1", "1":
		return One, nil
	case "majority":
		return Majority, nil
	case "all":
		return All, nil
	default:
		return 0, fmt.Errorf("unknown write concern %q", s)
	}
}

// WriteConcerns lists every concern in increasing strength
var WriteConcerns = []WriteConcern{One, Majority, All}
