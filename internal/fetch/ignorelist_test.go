package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIgnorelistExactMatch(t *testing.T) {
	l := NewIgnorelist([]string{"example.com", " Publisher.ORG "})
	assert.True(t, l.Contains("example.com"))
	assert.True(t, l.Contains("EXAMPLE.com"))
	assert.True(t, l.Contains("publisher.org"))
	assert.False(t, l.Contains("sub.example.com"))
	assert.False(t, l.Contains("other.com"))
}

func TestIgnorelistWildcards(t *testing.T) {
	l := NewIgnorelist([]string{"*.example.com", ".publisher.org"})
	assert.True(t, l.Contains("archive.example.com"))
	assert.True(t, l.Contains("deep.archive.example.com"))
	assert.True(t, l.Contains("example.com"))
	assert.True(t, l.Contains("cdn.publisher.org"))
	assert.False(t, l.Contains("examples.com"))
	assert.False(t, l.Contains("notexample.com"))
}

func TestIgnorelistEmptyAndNil(t *testing.T) {
	l := NewIgnorelist([]string{"", "  "})
	assert.False(t, l.Contains("example.com"))
	assert.False(t, l.Contains(""))

	var nilList *Ignorelist
	assert.False(t, nilList.Contains("example.com"))
}
