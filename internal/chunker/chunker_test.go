package chunker

import (
	"fmt"
	"strings"
	"testing"

	"rag-kb/internal/extractor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := New()
		assert.Equal(t, DefaultChunkSize, c.recursive.chunkSize)
		assert.Equal(t, DefaultMinCharacters, c.recursive.minCharacters)
		assert.Equal(t, DefaultChunkSize, c.table.chunkSize)
	})

	t.Run("zero values ignored", func(t *testing.T) {
		c := New(WithChunkSize(0), WithMinCharacters(-1))
		assert.Equal(t, DefaultChunkSize, c.recursive.chunkSize)
		assert.Equal(t, DefaultMinCharacters, c.recursive.minCharacters)
	})

	t.Run("min not below size", func(t *testing.T) {
		c := New(WithChunkSize(40), WithMinCharacters(100))
		assert.Less(t, c.recursive.minCharacters, c.recursive.chunkSize)
	})
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, PolicyTable, PolicyFor(extractor.KindSpreadsheet))
	assert.Equal(t, PolicyRecursive, PolicyFor(extractor.KindWord))
	assert.Equal(t, PolicyRecursive, PolicyFor(extractor.KindPDF))
	assert.Equal(t, "table", PolicyTable.String())
}

func TestChunk_Empty(t *testing.T) {
	c := New()
	assert.Empty(t, c.Chunk("", PolicyRecursive))
	assert.Empty(t, c.Chunk(" \n\t ", PolicyTable))
}

func TestRecursive_Bounds(t *testing.T) {
	var b strings.Builder
	b.WriteString("# Title\n\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Paragraph %d talks about something. It has two sentences.\n\n", i)
		if i%10 == 0 {
			fmt.Fprintf(&b, "## Section %d\n", i)
		}
	}
	b.WriteString(strings.Repeat("x", 1300))
	b.WriteString("\n\nпривет мир, это юникод. ")

	text := b.String()
	for _, size := range []int{60, 200, 500} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			segments := New(WithChunkSize(size), WithMinCharacters(10)).Chunk(text, PolicyRecursive)
			require.NotEmpty(t, segments)
			for _, s := range segments {
				assert.LessOrEqual(t, runeLen(s), size)
				assert.NotEmpty(t, strings.TrimSpace(s))
			}
		})
	}
}

func TestRecursive_PreservesOrder(t *testing.T) {
	text := "alpha one.\n\nbravo two.\n\ncharlie three.\n\ndelta four."
	segments := New(WithChunkSize(25), WithMinCharacters(1)).Chunk(text, PolicyRecursive)

	joined := strings.Join(segments, " ")
	last := -1
	for _, word := range []string{"alpha", "bravo", "charlie", "delta"} {
		idx := strings.Index(joined, word)
		require.GreaterOrEqual(t, idx, 0, word)
		assert.Greater(t, idx, last)
		last = idx
	}
}

func TestRecursive_ShortTextIsOneSegment(t *testing.T) {
	segments := New().Chunk("  Hello World  ", PolicyRecursive)
	assert.Equal(t, []string{"Hello World"}, segments)
}

func TestRecursive_MergesSmallPieces(t *testing.T) {
	text := strings.Repeat("a", 35) + "\n\nok\n\n" + strings.Repeat("b", 38)
	segments := New(WithChunkSize(40), WithMinCharacters(10)).Chunk(text, PolicyRecursive)

	require.Len(t, segments, 2)
	assert.Equal(t, strings.Repeat("a", 35)+"\nok", segments[0])
	assert.Equal(t, strings.Repeat("b", 38), segments[1])
	for _, s := range segments {
		assert.GreaterOrEqual(t, runeLen(s), 10)
	}
}

func TestTable_RepeatsHeader(t *testing.T) {
	header := "| name | qty |\n| --- | --- |"
	var rows []string
	for i := 0; i < 30; i++ {
		rows = append(rows, fmt.Sprintf("| item-%02d | %d |", i, i))
	}
	text := header + "\n" + strings.Join(rows, "\n")

	segments := New(WithChunkSize(120)).Chunk(text, PolicyTable)
	require.Greater(t, len(segments), 1)

	var seen []string
	for _, s := range segments {
		assert.True(t, strings.HasPrefix(s, header+"\n"), s)
		assert.LessOrEqual(t, runeLen(s), 120)
		lines := strings.Split(s, "\n")
		seen = append(seen, lines[2:]...)
	}
	assert.Equal(t, rows, seen)
}

func TestTable_OversizedRowStandsAlone(t *testing.T) {
	header := "| h |\n| --- |"
	long := "| " + strings.Repeat("z", 200) + " |"
	text := header + "\n| a |\n" + long + "\n| b |"

	segments := New(WithChunkSize(50)).Chunk(text, PolicyTable)
	require.Len(t, segments, 3)
	assert.Equal(t, header+"\n| a |", segments[0])
	assert.Equal(t, header+"\n"+long, segments[1])
	assert.Equal(t, header+"\n| b |", segments[2])
}

func TestTable_WideHeaderIsDropped(t *testing.T) {
	header := "| " + strings.Repeat("very long column title ", 3) + "|\n| --- |"
	rows := []string{"| 1 |", "| 2 |", "| 3 |", "| 4 |", "| 5 |", "| 6 |"}
	text := header + "\n" + strings.Join(rows, "\n")

	segments := New(WithChunkSize(20)).Chunk(text, PolicyTable)
	require.Len(t, segments, 2)

	var seen []string
	for _, s := range segments {
		assert.NotContains(t, s, "column title")
		assert.LessOrEqual(t, runeLen(s), 20)
		seen = append(seen, strings.Split(s, "\n")...)
	}
	assert.Equal(t, rows, seen)
}

func TestTable_HeaderOnly(t *testing.T) {
	segments := New().Chunk("| a | b |\n| --- | --- |", PolicyTable)
	assert.Equal(t, []string{"| a | b |\n| --- | --- |"}, segments)
}

func TestTable_FallsBackWithoutHeader(t *testing.T) {
	segments := New().Chunk("plain text, not a table", PolicyTable)
	assert.Equal(t, []string{"plain text, not a table"}, segments)
}

func TestSplitKeep(t *testing.T) {
	assert.Equal(t,
		[]string{"intro", "\n# A\ntext", "\n# B\nmore"},
		splitKeep("intro\n# A\ntext\n# B\nmore", "\n#", true))
	assert.Equal(t,
		[]string{"a\n\n", "b\n\n", "c"},
		splitKeep("a\n\nb\n\nc", "\n\n", false))
}
