package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeLowercasesAndSplits(t *testing.T) {
	assert.Equal(t, []string{"the", "quick", "brown", "fox"}, Tokenize("The Quick, Brown-Fox!"))
}

func TestTokenizeEmpty(t *testing.T) {
	assert.Empty(t, Tokenize("   ...   "))
}

func TestEditDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"fox", "fox", 0},
		{"fox", "box", 1},
		{"", "abc", 3},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, editDistance(c.a, c.b), "%q vs %q", c.a, c.b)
	}
}
