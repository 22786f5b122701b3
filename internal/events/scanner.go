package events

import (
	"database/sql"
	"fmt"

	"github.com/wardenhq/warden/internal/decision"
)

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var d string
	var reason, ipAddr, userAgent sql.NullString

	if err := rows.Scan(&e.ID, &e.Timestamp, &e.Method, &e.Path, &e.PayloadHash,
		&d, &e.Confidence, &reason, &ipAddr, &userAgent); err != nil {
		return Entry{}, fmt.Errorf("scan row: %w", err)
	}

	e.Decision = decision.Type(d)
	e.Reason = reason.String
	e.IPAddr = ipAddr.String
	e.UserAgent = userAgent.String

	return e, nil
}
