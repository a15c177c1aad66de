package domain

// ChunkRecord is one chunk as written to a vector collection.
type ChunkRecord struct {
	ID      string // doc_<ordinal>
	Ordinal int
	Text    string
	Vector  []float32
}

// ChunkHit is one similarity search result. Score is a similarity in [0,1], higher is closer.
type ChunkHit struct {
	ID    string
	Text  string
	Score float64
}
