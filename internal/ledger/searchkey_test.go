package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Ibuprofeno", "ibuprofeno"},
		{"strips accents", "Acetaminofén", "acetaminofen"},
		{"collapses whitespace", "  Tabletas   500 mg ", "tabletas 500 mg"},
		{"mixed accents and case", "CÁPSULAS Genéricas", "capsulas genericas"},
		{"enye is preserved without tilde", "Añejo", "anejo"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"Acetaminofén  500MG", "ibuprofeno", "  Jarabe Pediátrico "}
	for _, input := range inputs {
		once := Normalize(input)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestSearchKey(t *testing.T) {
	key := SearchKey("Acetaminofén", "Tabletas 500mg", "Genfar  S.A.")
	assert.Equal(t, "acetaminofen|tabletas 500mg|genfar s.a.", key)

	// Same product in different casing produces the same key
	other := SearchKey("ACETAMINOFEN", "tabletas 500MG", "genfar s.a.")
	assert.Equal(t, key, other)

	// A different presentation is a different product
	assert.NotEqual(t, key, SearchKey("Acetaminofén", "Jarabe 150ml", "Genfar S.A."))
}
