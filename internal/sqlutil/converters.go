package sqlutil

import (
	"database/sql"
	"time"
)

// ToSqlTime converts a Go time pointer to sql.NullTime
func ToSqlTime(val *time.Time) sql.NullTime {
	if val == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *val, Valid: true}
}

// FromSqlTime converts sql.NullTime to Go time pointer
func FromSqlTime(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	return &val.Time
}
