package events

const (
	queryInsertEntry = `
		INSERT INTO events (timestamp, method, path, payload_hash, decision, confidence, reason, ip_addr, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	querySelectByDecisionSince = `
		SELECT id, timestamp, method, path, payload_hash, decision, confidence, reason, ip_addr, user_agent
		FROM events
		WHERE decision = ? AND timestamp >= ?
		ORDER BY timestamp ASC, id ASC`

	queryCountByDecisionSince = `
		SELECT COUNT(*)
		FROM events
		WHERE decision = ? AND timestamp >= ?`

	querySelectRecent = `
		SELECT id, timestamp, method, path, payload_hash, decision, confidence, reason, ip_addr, user_agent
		FROM events
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`

	queryCountGroupedSince = `
		SELECT decision, COUNT(*)
		FROM events
		WHERE timestamp >= ?
		GROUP BY decision`
)
