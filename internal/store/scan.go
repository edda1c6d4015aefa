package store

import (
	"database/sql"
	"time"
)

func unixToTime(n int64) time.Time {
	return time.Unix(n, 0).UTC()
}

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}

	t := unixToTime(v.Int64)

	return &t
}

func nullableString(v sql.NullString) string {
	if !v.Valid {
		return ""
	}

	return v.String
}
