package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildScanQuery(t *testing.T) {
	cols := []string{`"id"`, `"updated_at"`, `"email"`}

	t.Run("first page has no cursor predicate", func(t *testing.T) {
		query, args := buildScanQuery("leads", cols, "", 500)

		// uuid and integer id columns cannot compare against an empty string
		assert.Equal(t, `SELECT "id", "updated_at", "email" FROM "leads" ORDER BY id LIMIT 500`, query)
		assert.Empty(t, args)
	})

	t.Run("subsequent pages filter past the cursor", func(t *testing.T) {
		query, args := buildScanQuery("leads", cols, "0193a1f2", 500)

		assert.Equal(t, `SELECT "id", "updated_at", "email" FROM "leads" WHERE id > $1 ORDER BY id LIMIT 500`, query)
		assert.Equal(t, []any{"0193a1f2"}, args)
	})
}
