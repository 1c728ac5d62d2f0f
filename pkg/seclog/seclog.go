// Package seclog records security-relevant game events (character deletion,
// puppet acquisition) in a SQLite database so they survive restarts and can
// be queried by staff tooling.
package seclog

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT    NOT NULL,
	event       TEXT    NOT NULL,
	outcome     TEXT    NOT NULL,
	actor_id    INTEGER NOT NULL,
	actor_name  TEXT    NOT NULL,
	target_ref  INTEGER NOT NULL,
	target_name TEXT    NOT NULL,
	origin      TEXT    NOT NULL,
	detail      TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts);
CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_id);
`

// Event name constants.
const (
	EventPuppet = "puppet"
	EventDelete = "chardelete"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Entry is one audit log row.
type Entry struct {
	ID         int64
	At         time.Time
	Event      string
	Outcome    string
	ActorID    gamedb.AccountID
	ActorName  string
	TargetRef  gamedb.ObjRef
	TargetName string
	Origin     string
	Detail     string
}

// Log is a SQLite-backed audit sink.
type Log struct {
	db *sql.DB
}

// Open opens or creates the audit database at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("seclog: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("seclog: create schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record inserts one audit entry. Failures to write the audit trail are
// logged but never propagated into the game flow.
func (l *Log) Record(e Entry) {
	log.Printf("SEC %s/%s: actor=%s(%d) target=%s(#%d) origin=%s %s",
		e.Event, e.Outcome, e.ActorName, e.ActorID, e.TargetName, e.TargetRef, e.Origin, e.Detail)
	if l == nil || l.db == nil {
		return
	}
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := l.db.Exec(
		`INSERT INTO audit_log (ts, event, outcome, actor_id, actor_name, target_ref, target_name, origin, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		at.Format(time.RFC3339Nano), e.Event, e.Outcome,
		int(e.ActorID), e.ActorName, int(e.TargetRef), e.TargetName, e.Origin, e.Detail)
	if err != nil {
		log.Printf("seclog: insert failed: %v", err)
	}
}

// PuppetAttempt records a puppet acquisition attempt.
func (l *Log) PuppetAttempt(outcome string, actor *gamedb.Account, targetRef gamedb.ObjRef, targetName, origin, detail string) {
	e := Entry{Event: EventPuppet, Outcome: outcome, TargetRef: targetRef, TargetName: targetName, Origin: origin, Detail: detail}
	if actor != nil {
		e.ActorID = actor.ID
		e.ActorName = actor.Name
	}
	l.Record(e)
}

// CharacterDeleted records a successful character deletion.
func (l *Log) CharacterDeleted(actor *gamedb.Account, targetRef gamedb.ObjRef, targetName, origin string) {
	e := Entry{Event: EventDelete, Outcome: OutcomeSuccess, TargetRef: targetRef, TargetName: targetName, Origin: origin}
	if actor != nil {
		e.ActorID = actor.ID
		e.ActorName = actor.Name
	}
	l.Record(e)
}

// Recent returns up to n most recent entries, newest first.
func (l *Log) Recent(n int) ([]Entry, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	rows, err := l.db.Query(
		`SELECT id, ts, event, outcome, actor_id, actor_name, target_ref, target_name, origin, detail
		 FROM audit_log ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("seclog: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		var actorID, targetRef int
		if err := rows.Scan(&e.ID, &ts, &e.Event, &e.Outcome, &actorID, &e.ActorName, &targetRef, &e.TargetName, &e.Origin, &e.Detail); err != nil {
			return nil, fmt.Errorf("seclog: scan: %w", err)
		}
		e.ActorID = gamedb.AccountID(actorID)
		e.TargetRef = gamedb.ObjRef(targetRef)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.At = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
