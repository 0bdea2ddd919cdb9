package models

import "time"

// SourceRecord is a read-only view of one collaborator row, restricted to the
// fields the active rule names plus the row's update timestamp.
type SourceRecord struct {
	Table     string         `json:"table"`
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (r *SourceRecord) Ref() EntityRef {
	return EntityRef{Table: r.Table, ID: r.ID}
}

// FieldString returns the record's value for a field as a string, or "" when
// the field is absent, null, or not textual.
func (r *SourceRecord) FieldString(field string) string {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
