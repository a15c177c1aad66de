package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_ChunkSchema(t *testing.T) {
	idx, err := NewIndex("rulebook:monopoly_rules").
		Prefix("rulebook:monopoly_rules:").
		Tag("doc_id").
		Numeric("ordinal").
		Text("text").
		Vector("vector", VectorHNSW, 384, DistanceCosine, 16, 200).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(idx.Fields) != 4 {
		t.Fatalf("fields count = %d, want 4", len(idx.Fields))
	}
	if idx.Fields[0].Type != IndexFieldTag || idx.Fields[1].Type != IndexFieldNumeric {
		t.Errorf("unexpected field types: %+v", idx.Fields[:2])
	}
	v := idx.Fields[3]
	if v.VectorAlgo != VectorHNSW || v.VectorDim != 384 || v.VectorDistance != DistanceCosine {
		t.Errorf("unexpected vector field: %+v", v)
	}
	if v.VectorM != 16 || v.VectorEFConstruct != 200 {
		t.Errorf("M/EF = %d/%d, want 16/200", v.VectorM, v.VectorEFConstruct)
	}
}

func TestIndexBuilder_FlatIgnoresHNSWParams(t *testing.T) {
	idx, err := NewIndex("flat-idx").Vector("vec", VectorFlat, 8, DistanceL2, 32, 400).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Fields[0].VectorM != 0 || idx.Fields[0].VectorEFConstruct != 0 {
		t.Errorf("expected HNSW params dropped for FLAT, got %+v", idx.Fields[0])
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder *IndexBuilder
	}{
		{"empty name", NewIndex("").Tag("f")},
		{"invalid name", NewIndex("bad name").Tag("f")},
		{"no fields", NewIndex("idx")},
		{"duplicate field", NewIndex("idx").Tag("f").Text("f")},
		{"zero dim", NewIndex("idx").Vector("v", VectorHNSW, 0, DistanceCosine, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.builder.Build(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestIndexDefinition_String(t *testing.T) {
	idx, err := NewIndex("idx").Prefix("a:", "b:").Text("text").Vector("vec", VectorFlat, 4, DistanceCosine, 0, 0).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := idx.String()
	for _, want := range []string{"FT.CREATE idx ON HASH", "PREFIX 2 a: b:", "text TEXT", "vec VECTOR FLAT DIM 4"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestParseVectorAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    VectorAlgorithm
		wantErr bool
	}{
		{"", VectorHNSW, false},
		{"hnsw", VectorHNSW, false},
		{"FLAT", VectorFlat, false},
		{"ivf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseVectorAlgorithm(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVectorAlgorithm(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseVectorAlgorithm(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsValidIdentifier(t *testing.T) {
	for _, s := range []string{"abc", "a:b", "A-1_z"} {
		if !IsValidIdentifier(s) {
			t.Errorf("expected %q valid", s)
		}
	}
	for _, s := range []string{"", "a b", "a/b", "ü"} {
		if IsValidIdentifier(s) {
			t.Errorf("expected %q invalid", s)
		}
	}
}
