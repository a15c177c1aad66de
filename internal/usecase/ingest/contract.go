package ingest

import "context"

// Indexer replaces the collection contents with a new set of chunks.
type Indexer interface {
	Initialized() bool
	Reindex(ctx context.Context, chunks []string) (int, error)
}

// Extractor returns the text of the document at path.
type Extractor func(path string) (string, error)

// Splitter cuts document text into chunks.
type Splitter interface {
	Texts(text string) []string
}
