package overlay

import (
	"sort"
	"strings"
)

// Exclusions is a set of path motifs. A path is excluded when its full path
// string contains any motif as a literal substring. There is no glob or
// regular expression syntax: "*.tmp" only matches paths that contain the
// characters "*.tmp".
type Exclusions map[string]struct{}

// NewExclusions builds an exclusion set. Empty motifs are dropped since they
// would match every path.
func NewExclusions(motifs ...string) Exclusions {
	ex := make(Exclusions, len(motifs))
	for _, m := range motifs {
		if m == "" {
			continue
		}
		ex[m] = struct{}{}
	}
	return ex
}

// Match reports whether path contains one of the motifs.
func (ex Exclusions) Match(path string) bool {
	for m := range ex {
		if strings.Contains(path, m) {
			return true
		}
	}
	return false
}

// Add returns a copy of the set extended with motifs.
func (ex Exclusions) Add(motifs ...string) Exclusions {
	out := NewExclusions(motifs...)
	for m := range ex {
		out[m] = struct{}{}
	}
	return out
}

// Motifs returns the motifs in sorted order.
func (ex Exclusions) Motifs() []string {
	out := make([]string, 0, len(ex))
	for m := range ex {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
