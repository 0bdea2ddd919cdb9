// Package sources reads collaborator tables (leads, organizations, contacts,
// clients) without owning their schemas. Access is read-only and restricted to
// the fields named by the active rule.
package sources

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/errs"
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/tracing"
)

// identRe limits table and field names to plain SQL identifiers. Rule input
// is operator-authored, not trusted.
var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Chunk is one page of a cursor-paginated table scan
type Chunk struct {
	Records    []*models.SourceRecord
	NextCursor string
	HasMore    bool
}

// Reader provides chunked, cursor-paginated scans over collaborator tables
type Reader struct {
	db     database.DB
	logger ectologger.Logger
}

// NewReader creates a new collaborator table reader
func NewReader(db database.DB, logger ectologger.Logger) *Reader {
	return &Reader{
		db:     db,
		logger: logger,
	}
}

// FetchChunk reads up to limit rows from the table, ordered by id, starting
// after the cursor. Only the allow-listed fields plus id and updated_at are
// selected.
func (r *Reader) FetchChunk(ctx context.Context, table string, fields []string, cursor string, limit int) (*Chunk, error) {
	ctx, span := tracing.StartSpan(ctx, "sources.Reader.FetchChunk")
	defer span.End()

	if !identRe.MatchString(table) {
		return nil, errs.InvalidRulef("invalid table name %q", table)
	}
	for _, f := range fields {
		if !identRe.MatchString(f) {
			return nil, errs.InvalidRulef("invalid field name %q", f)
		}
	}
	if limit < 1 {
		limit = 500
	}

	cols := make([]string, 0, len(fields)+2)
	cols = append(cols, pq.QuoteIdentifier("id"), pq.QuoteIdentifier("updated_at"))
	for _, f := range fields {
		if f == "id" || f == "updated_at" {
			continue
		}
		cols = append(cols, pq.QuoteIdentifier(f))
	}

	query, args := buildScanQuery(table, cols, cursor, limit)

	rows, err := database.FromContext(ctx, r.db).QueryxContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": table}).Error("Failed to scan collaborator table")
		return nil, errs.Internal("failed to scan source table")
	}
	defer rows.Close()

	chunk := &Chunk{}
	for rows.Next() {
		raw := map[string]any{}
		if err := rows.MapScan(raw); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to scan source row")
			return nil, errs.Internal("failed to scan source row")
		}

		record := &models.SourceRecord{
			Table:  table,
			Fields: make(map[string]any, len(raw)),
		}
		for k, v := range raw {
			switch k {
			case "id":
				record.ID = asString(v)
			case "updated_at":
				if ts, ok := v.(time.Time); ok {
					record.UpdatedAt = ts
				}
			default:
				record.Fields[k] = coerce(v)
			}
		}
		if record.ID == "" {
			continue
		}
		chunk.Records = append(chunk.Records, record)
		chunk.NextCursor = record.ID
	}
	if err := rows.Err(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed while iterating source rows")
		return nil, errs.Internal("failed to scan source table")
	}

	chunk.HasMore = len(chunk.Records) == limit
	return chunk, nil
}

// buildScanQuery assembles the paginated select. The first page carries no
// cursor predicate: collaborator id columns may be uuid or integer, and an
// empty-string bound would fail to cast.
func buildScanQuery(table string, cols []string, cursor string, limit int) (string, []any) {
	where := ""
	args := []any{}
	if cursor != "" {
		where = " WHERE id > $1"
		args = append(args, cursor)
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s%s ORDER BY id LIMIT %d",
		strings.Join(cols, ", "), pq.QuoteIdentifier(table), where, limit,
	)
	return query, args
}

// asString renders a scanned id value as a string key
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return fmt.Sprintf("%d", t)
	}
	return ""
}

// coerce converts driver byte slices into strings so field values compare as
// text.
func coerce(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
