package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/errs"
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/tracing"
)

// FetchRecord reads a single collaborator row by ref, restricted to the
// allow-listed fields. The merge engine snapshots records through this.
func (r *Reader) FetchRecord(ctx context.Context, ref models.EntityRef, fields []string) (*models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "sources.Reader.FetchRecord")
	defer span.End()

	if !identRe.MatchString(ref.Table) {
		return nil, errs.InvalidRulef("invalid table name %q", ref.Table)
	}
	for _, f := range fields {
		if !identRe.MatchString(f) {
			return nil, errs.InvalidRulef("invalid field name %q", f)
		}
	}

	cols := make([]string, 0, len(fields)+2)
	cols = append(cols, pq.QuoteIdentifier("id"), pq.QuoteIdentifier("updated_at"))
	for _, f := range fields {
		if f == "id" || f == "updated_at" {
			continue
		}
		cols = append(cols, pq.QuoteIdentifier(f))
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE id = $1",
		strings.Join(cols, ", "), pq.QuoteIdentifier(ref.Table),
	)

	rows, err := database.FromContext(ctx, r.db).QueryxContext(ctx, query, ref.ID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": ref.Table, "id": ref.ID}).Error("Failed to fetch source record")
		return nil, errs.Internal("failed to fetch source record")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errs.NotFoundf("record %s/%s not found", ref.Table, ref.ID)
	}

	raw := map[string]any{}
	if err := rows.MapScan(raw); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to scan source record")
		return nil, errs.Internal("failed to scan source record")
	}

	record := &models.SourceRecord{
		Table:  ref.Table,
		ID:     ref.ID,
		Fields: make(map[string]any, len(raw)),
	}
	for k, v := range raw {
		switch k {
		case "id":
		case "updated_at":
			if ts, ok := v.(time.Time); ok {
				record.UpdatedAt = ts
			}
		default:
			record.Fields[k] = coerce(v)
		}
	}

	return record, nil
}
