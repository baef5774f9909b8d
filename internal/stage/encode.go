// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package stage

import "time"

// nullSentinel matches the reference loader's native bulk-import null
// convention.
const nullSentinel = `\N`

// Null encodes s as the CSV dialect's null sentinel when empty, or returns
// s unchanged. Whitespace-trimming happens upstream in the Transformer.
func Null(s string) string {
	if s == "" {
		return nullSentinel
	}
	return s
}

// Bool encodes b as the CSV dialect's boolean convention: "t"/"f".
func Bool(b bool) string {
	if b {
		return "t"
	}
	return "f"
}

// Date encodes t as an ISO 8601 calendar date. A zero time encodes to the
// null sentinel.
func Date(t time.Time) string {
	if t.IsZero() {
		return nullSentinel
	}
	return t.UTC().Format("2006-01-02")
}

// OptionalDate encodes t as an ISO 8601 calendar date, or the null
// sentinel when t is nil.
func OptionalDate(t *time.Time) string {
	if t == nil {
		return nullSentinel
	}
	return Date(*t)
}

// Timestamp encodes t as an RFC 3339 timestamp in UTC.
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return nullSentinel
	}
	return t.UTC().Format(time.RFC3339)
}

// JSON encodes a raw JSON payload as a CSV field value. encoding/csv already
// doubles embedded quotes and permits literal newlines inside quoted
// fields, so no extra escaping is required here.
func JSON(raw []byte) string {
	if len(raw) == 0 {
		return nullSentinel
	}
	return string(raw)
}
