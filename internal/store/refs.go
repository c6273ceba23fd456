package store

import (
	"regexp"
)

// refPattern matches an inline record inclusion: ((recordId)).
var refPattern = regexp.MustCompile(`\(\(([a-zA-Z0-9_-]+)\)\)`)

// maxRefDepth bounds reference expansion. Content nested deeper than this
// is left unexpanded rather than recursed into.
const maxRefDepth = 10

// ExpandRefs replaces ((id)) inclusions in content with the referenced
// record's content, recursively.
//
// Cycles are broken with an explicit visited set: a reference to a record
// already being expanded (including a self-reference) is left as-is instead
// of recursing forever.
func (s *Store) ExpandRefs(content string) string {
	return s.expandRefs(content, make(map[string]bool), 0)
}

func (s *Store) expandRefs(content string, visited map[string]bool, depth int) string {
	if depth >= maxRefDepth {
		return content
	}
	return refPattern.ReplaceAllStringFunc(content, func(match string) string {
		id := refPattern.FindStringSubmatch(match)[1]
		if visited[id] {
			return match
		}
		rec, err := s.Get(id)
		if err != nil {
			return match
		}
		visited[id] = true
		expanded := s.expandRefs(rec.Content, visited, depth+1)
		delete(visited, id)
		return expanded
	})
}
