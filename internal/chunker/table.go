package chunker

import "strings"

// TableChunker splits a Markdown pipe table on row boundaries. The header
// and separator lines open every segment unless they alone fill the budget,
// in which case segments carry rows only. A row longer than the budget is
// emitted alone rather than cut.
type TableChunker struct {
	chunkSize int
	fallback  *RecursiveChunker
}

func (t *TableChunker) Chunk(text string) []string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) < 2 || !isSeparatorLine(lines[1]) {
		return t.fallback.Chunk(text)
	}

	header := lines[0] + "\n" + lines[1]
	prefix := header + "\n"
	base := runeLen(header)
	if base >= t.chunkSize {
		prefix = ""
		base = -1 // the first row carries no leading newline
	}

	var (
		segments []string
		rows     []string
		size     = base
	)
	flush := func() {
		if len(rows) == 0 {
			return
		}
		segments = append(segments, prefix+strings.Join(rows, "\n"))
		rows = rows[:0]
		size = base
	}

	for _, row := range lines[2:] {
		if strings.TrimSpace(row) == "" {
			continue
		}
		rowLen := runeLen(row) + 1
		if len(rows) > 0 && size+rowLen > t.chunkSize {
			flush()
		}
		rows = append(rows, row)
		size += rowLen
	}
	flush()

	if len(segments) == 0 {
		return []string{header}
	}
	return segments
}

func isSeparatorLine(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "|") || !strings.Contains(line, "---") {
		return false
	}
	return strings.Trim(line, "|-: ") == ""
}
