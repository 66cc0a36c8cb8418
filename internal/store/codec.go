package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrMalformed marks a stored row whose encoded fields cannot be decoded.
// List queries skip such rows; single-row lookups return the error.
var ErrMalformed = errors.New("malformed record")

func encodeJSON(v any) (string, error) {
	switch x := v.(type) {
	case []string:
		if x == nil {
			return "[]", nil
		}
	case map[string]int:
		if x == nil {
			return "{}", nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(raw, table, id, column string, dst any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w: %s %s.%s: %v", ErrMalformed, table, id, column, err)
	}
	return nil
}

// skipMalformed reports whether err should be logged and skipped during a scan.
func skipMalformed(err error, table string) bool {
	if errors.Is(err, ErrMalformed) {
		slog.Warn("skipping malformed row", "component", "store", "table", table, "err", err)
		return true
	}
	return false
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

type rowScanner interface {
	Scan(dest ...any) error
}
