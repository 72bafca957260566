// Package chunker splits extracted document text into bounded segments for
// embedding.
package chunker

import (
	"strings"
	"unicode/utf8"

	"rag-kb/internal/extractor"
)

const (
	DefaultChunkSize     = 500
	DefaultMinCharacters = 24
)

// Policy selects the splitting strategy.
type Policy int

const (
	PolicyRecursive Policy = iota
	PolicyTable
)

func (p Policy) String() string {
	if p == PolicyTable {
		return "table"
	}
	return "recursive"
}

// PolicyFor maps a document kind to its chunking policy: spreadsheets are
// split on row boundaries, everything else recursively.
func PolicyFor(kind extractor.Kind) Policy {
	if kind == extractor.KindSpreadsheet {
		return PolicyTable
	}
	return PolicyRecursive
}

// Chunker dispatches to the table or recursive splitter.
type Chunker struct {
	table     *TableChunker
	recursive *RecursiveChunker
}

type options struct {
	chunkSize     int
	minCharacters int
}

// Option configures a Chunker.
type Option func(*options)

// WithChunkSize sets the maximum segment length in runes.
func WithChunkSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.chunkSize = size
		}
	}
}

// WithMinCharacters sets the length below which a recursive segment is
// merged into a neighbour.
func WithMinCharacters(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.minCharacters = n
		}
	}
}

func New(opts ...Option) *Chunker {
	o := options{
		chunkSize:     DefaultChunkSize,
		minCharacters: DefaultMinCharacters,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.minCharacters >= o.chunkSize {
		o.minCharacters = o.chunkSize / 4
	}

	recursive := &RecursiveChunker{chunkSize: o.chunkSize, minCharacters: o.minCharacters}
	return &Chunker{
		table:     &TableChunker{chunkSize: o.chunkSize, fallback: recursive},
		recursive: recursive,
	}
}

// Chunk splits text under policy. Segments keep source order and none is
// empty or whitespace-only.
func (c *Chunker) Chunk(text string, policy Policy) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if policy == PolicyTable {
		return c.table.Chunk(text)
	}
	return c.recursive.Chunk(text)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
