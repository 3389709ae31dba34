package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"CorollaLE", "corollale"},
		{"  Toyota   Corolla\tLE ", "toyota corolla le"},
		{"Toyota Corolla – LE", "toyota corolla le"},
		{"Toyota-Corolla_LE", "toyota corolla le"},
		{"ＴＯＹＯＴＡ Corolla", "toyota corolla"},
		{"מאזדה 3 ספורט", "מאזדה 3 ספורט"},
		{"טויוטה ק״מ", `טויוטה ק"מ`},
		{"Kia Pro’Ceed", "kia pro'ceed"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTitle(tt.raw), "NormalizeTitle(%q)", tt.raw)
	}
}

func TestNormalizeTitleIdempotent(t *testing.T) {
	for _, raw := range []string{"Toyota Corolla – LE", "ＡＢＣ", "מאזדה  3"} {
		once := NormalizeTitle(raw)
		assert.Equal(t, once, NormalizeTitle(once))
	}
}

func TestFoldDigits(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"123", "123"},
		{"١٢٣٬٤٥٦", "123٬456"},
		{"۱۲۳", "123"},
		{"１２０,０００ ₪", "120,000 ₪"},
		{"१०", "10"},
		{"no digits", "no digits"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FoldDigits(tt.raw), "FoldDigits(%q)", tt.raw)
	}
}
