package merge

import (
	"slices"
)

// UniqueValues returns the distinct candidate values in lexicographic order.
func UniqueValues(cands []Candidate) []string {
	seen := make(map[string]struct{}, len(cands))
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		if c.Value == "" {
			continue
		}
		if _, dup := seen[c.Value]; dup {
			continue
		}
		seen[c.Value] = struct{}{}
		out = append(out, c.Value)
	}
	slices.Sort(out)
	return out
}

// Batch splits values into consecutive chunks of at most size values. Every value
// lands in exactly one chunk.
func Batch(values []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	out := make([][]string, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		out = append(out, slices.Clone(values[start:end]))
	}
	return out
}
