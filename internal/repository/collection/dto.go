package collection

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/kailas-cloud/rulebook/internal/db"
	"github.com/kailas-cloud/rulebook/internal/domain"
)

func recordToHash(rec *domain.ChunkRecord) map[string]string {
	return map[string]string{
		docIDField:   rec.ID,
		ordinalField: strconv.Itoa(rec.Ordinal),
		textField:    rec.Text,
		vectorField:  vectorToBytes(rec.Vector),
	}
}

func hitFromEntry(e *db.SearchEntry) domain.ChunkHit {
	return domain.ChunkHit{
		ID:    e.Fields[docIDField],
		Text:  e.Fields[textField],
		Score: e.Score,
	}
}

// vectorToBytes packs float32 values little-endian for the HASH vector field.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

