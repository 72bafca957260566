package chunker

import "strings"

// separator levels, coarsest first; the last level cuts characters
var separators = []struct {
	sep         string
	keepLeading bool
}{
	{"\n#", true},
	{"\n\n", false},
	{"\n", false},
	{". ", false},
	{" ", false},
}

// RecursiveChunker splits on the coarsest separator that works, merges
// neighbours greedily up to the budget and descends a level for any piece
// that is still too long.
type RecursiveChunker struct {
	chunkSize     int
	minCharacters int
}

func (r *RecursiveChunker) Chunk(text string) []string {
	var segments []string
	for _, s := range r.split(text, 0) {
		if s = strings.TrimSpace(s); s != "" {
			segments = append(segments, s)
		}
	}
	return r.mergeSmall(segments)
}

func (r *RecursiveChunker) split(text string, level int) []string {
	if runeLen(text) <= r.chunkSize {
		return []string{text}
	}
	if level >= len(separators) {
		return cutRunes(text, r.chunkSize)
	}

	pieces := splitKeep(text, separators[level].sep, separators[level].keepLeading)
	if len(pieces) == 1 {
		return r.split(text, level+1)
	}

	var (
		out     []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if size > 0 {
			out = append(out, current.String())
			current.Reset()
			size = 0
		}
	}

	for _, p := range pieces {
		n := runeLen(p)
		if n > r.chunkSize {
			flush()
			out = append(out, r.split(p, level+1)...)
			continue
		}
		if size+n > r.chunkSize {
			flush()
		}
		current.WriteString(p)
		size += n
	}
	flush()
	return out
}

// mergeSmall folds segments shorter than the minimum into the previous or
// next segment when the result still fits.
func (r *RecursiveChunker) mergeSmall(segments []string) []string {
	if r.minCharacters <= 0 || len(segments) < 2 {
		return segments
	}

	out := make([]string, 0, len(segments))
	for i := 0; i < len(segments); i++ {
		s := segments[i]
		if runeLen(s) >= r.minCharacters {
			out = append(out, s)
			continue
		}
		if n := len(out); n > 0 && runeLen(out[n-1])+1+runeLen(s) <= r.chunkSize {
			out[n-1] += "\n" + s
			continue
		}
		if i+1 < len(segments) && runeLen(s)+1+runeLen(segments[i+1]) <= r.chunkSize {
			segments[i+1] = s + "\n" + segments[i+1]
			continue
		}
		out = append(out, s)
	}
	return out
}

// splitKeep splits s on sep without losing it: the separator stays at the
// start of the following piece when keepLeading is set, at the end of the
// preceding piece otherwise.
func splitKeep(s, sep string, keepLeading bool) []string {
	var pieces []string
	for {
		i := strings.Index(s, sep)
		if i < 0 {
			break
		}
		if keepLeading {
			if i > 0 {
				pieces = append(pieces, s[:i])
			}
			// skip past the separator so the next search finds the following one
			j := strings.Index(s[i+len(sep):], sep)
			if j < 0 {
				pieces = append(pieces, s[i:])
				return pieces
			}
			pieces = append(pieces, s[i:i+len(sep)+j])
			s = s[i+len(sep)+j:]
			continue
		}
		pieces = append(pieces, s[:i+len(sep)])
		s = s[i+len(sep):]
	}
	if s != "" {
		pieces = append(pieces, s)
	}
	return pieces
}

func cutRunes(s string, size int) []string {
	runes := []rune(s)
	out := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}
