package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortByIDs(t *testing.T) {
	type rec struct{ id string }
	records := []rec{{"b"}, {"c"}, {"a"}}

	got := sortByIDs([]string{"a", "b", "x", "c"}, records, func(r rec) string { return r.id })

	assert.Equal(t, []rec{{"a"}, {"b"}, {"c"}}, got)
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	if v := nullIfEmpty("cpn-1"); assert.NotNil(t, v) {
		assert.Equal(t, "cpn-1", *v)
	}
	assert.Equal(t, []string{}, nonNil(nil))
}
