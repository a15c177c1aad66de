package collection

import (
	"github.com/kailas-cloud/rulebook/internal/db"
)

const (
	docIDField   = "doc_id"
	ordinalField = "ordinal"
	textField    = "text"
	vectorField  = "vector"
)

// buildIndex describes the chunk schema: id tag, ordinal, raw text and a cosine vector field.
func buildIndex(
	indexName, prefix string, vectorDim int, algo db.VectorAlgorithm, hnsw HNSWConfig,
) (*db.IndexDefinition, error) {
	return db.NewIndex(indexName).
		Prefix(prefix).
		Tag(docIDField).
		Numeric(ordinalField).
		Text(textField).
		Vector(vectorField, algo, vectorDim, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).
		Build()
}
