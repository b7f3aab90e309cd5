package tle

import (
	"strings"
	"time"
)

// Entry is one object's two-line element set as read from a feed.
type Entry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// IsDebris reports whether the entry names a fragment or a spent rocket body.
func (e Entry) IsDebris() bool {
	return IsDebrisName(e.Name)
}

// IsDebrisName applies the CelesTrak naming convention: fragments carry a "DEB" token
// and upper stages an "R/B" token, e.g. "FENGYUN 1C DEB" or "CZ-4B R/B".
func IsDebrisName(name string) bool {
	for _, tok := range strings.Fields(strings.ToUpper(name)) {
		if tok == "DEB" || tok == "R/B" {
			return true
		}
	}
	return false
}

// Set is the result of one fetch: every parsed entry plus where and when it came from.
type Set struct {
	Source    string
	FetchedAt time.Time
	Entries   []Entry
}

// EpochRange returns the oldest and newest element epoch in the set. Both are zero for
// an empty set.
func (s *Set) EpochRange() (oldest, newest time.Time) {
	for i, e := range s.Entries {
		if i == 0 || e.Epoch.Before(oldest) {
			oldest = e.Epoch
		}
		if i == 0 || e.Epoch.After(newest) {
			newest = e.Epoch
		}
	}
	return oldest, newest
}
