package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB scans a postgres jsonb column into T and marshals T back on write.
type JSONB[T any] struct {
	Data T
}

func (p *JSONB[T]) Scan(src any) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("JSONB.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, &p.Data)
}

func (p JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(p.Data)
}

func (p *JSONB[T]) GetValue() T {
	return p.Data
}

// MarshalJSON/UnmarshalJSON make the wrapper transparent in API payloads.
func (p JSONB[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Data)
}

func (p *JSONB[T]) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &p.Data)
}

func NewJSONB[T any](data T) JSONB[T] {
	return JSONB[T]{Data: data}
}
