package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"DigestAgent/internal/domain"
)

func TestDedupKeepsFirstOccurrence(t *testing.T) {
	a := domain.Article{Title: "A", URL: "x"}
	b := domain.Article{Title: "B", URL: "y"}
	c := domain.Article{Title: "C", URL: "x"}

	assert.Equal(t, []domain.Article{a, b}, Dedup([]domain.Article{a, b, c}))
}

func TestDedupNeverKeysOnEmptyURL(t *testing.T) {
	in := []domain.Article{{Title: "one"}, {Title: "two"}, {Title: "three", URL: "z"}, {Title: "four", URL: "z"}}

	out := Dedup(in)
	assert.Len(t, out, 3)
	assert.Equal(t, "three", out[2].Title)
	assert.Empty(t, Dedup(nil))
}
