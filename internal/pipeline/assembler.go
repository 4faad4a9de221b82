package pipeline

import "strings"

// Assemble joins the results of completed chunks in document order,
// separated by a blank line. Failed chunks are left out.
func Assemble(states []*ChunkState) string {
	ordered := make([]*ChunkState, 0, len(states))
	for _, st := range states {
		if st.Status == Completed && strings.TrimSpace(st.Result) != "" {
			ordered = append(ordered, st)
		}
	}
	sortByPosition(ordered)

	parts := make([]string, len(ordered))
	for i, st := range ordered {
		parts[i] = strings.TrimSpace(st.Result)
	}
	return strings.Join(parts, "\n\n")
}
