package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

func toJSON(v any) string {
	if v == nil {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func fromJSONStrings(s sql.NullString) []string {
	out := []string{}
	if !s.Valid || s.String == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s.String), &out)
	return out
}

func fromJSONInt64s(s sql.NullString) []int64 {
	out := []int64{}
	if !s.Valid || s.String == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s.String), &out)
	return out
}

func nullTimeToPtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func ptrToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func intPtrToNull(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullInt64ToIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
