package events

const (
	tableSchema = `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			payload_hash TEXT NOT NULL,
			decision TEXT NOT NULL CHECK(decision IN ('allow', 'flag', 'block')),
			confidence REAL NOT NULL,
			reason TEXT,
			ip_addr TEXT,
			user_agent TEXT
		)`

	indexDecisionTimestamp = `
		CREATE INDEX IF NOT EXISTS idx_decision_timestamp ON events(decision, timestamp)`

	indexPayloadHash = `
		CREATE INDEX IF NOT EXISTS idx_payload_hash ON events(payload_hash)`

	indexTimestamp = `
		CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp DESC)`

	triggerPreventUpdate = `
		CREATE TRIGGER IF NOT EXISTS prevent_update
		BEFORE UPDATE ON events
		FOR EACH ROW
		BEGIN
			SELECT RAISE(FAIL, 'Updates not allowed on events');
		END`

	triggerPreventDelete = `
		CREATE TRIGGER IF NOT EXISTS prevent_delete
		BEFORE DELETE ON events
		FOR EACH ROW
		BEGIN
			SELECT RAISE(FAIL, 'Deletes not allowed on events');
		END`
)

func schemaStatements() []string {
	return []string{
		tableSchema,
		indexDecisionTimestamp,
		indexPayloadHash,
		indexTimestamp,
		triggerPreventUpdate,
		triggerPreventDelete,
	}
}
