package runtime

import (
	"maps"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// QueryLogEntry is one executed statement recorded while debug mode is on.
type QueryLogEntry struct {
	SQL    string         `json:"query"`
	Params map[string]any `json:"params"`
	Time   time.Time      `json:"time"`
}

// EnableDebug turns the query log on or off. Entries already recorded are kept.
func (db *DB) EnableDebug(enabled bool) {
	db.mu.Lock()
	db.debug = enabled
	db.mu.Unlock()
}

// Debug reports whether the query log is on.
func (db *DB) Debug() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.debug
}

// QueryLog returns a copy of the recorded statements in execution order.
func (db *DB) QueryLog() []QueryLogEntry {
	db.mu.Lock()
	defer db.mu.Unlock()

	entries := make([]QueryLogEntry, len(db.log))
	copy(entries, db.log)
	return entries
}

// LastQuery returns the most recently recorded statement.
func (db *DB) LastQuery() (QueryLogEntry, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(db.log) == 0 {
		return QueryLogEntry{}, false
	}
	return db.log[len(db.log)-1], true
}

// FlushQueryLog discards all recorded statements.
func (db *DB) FlushQueryLog() {
	db.mu.Lock()
	db.log = nil
	db.mu.Unlock()
}

func (db *DB) record(sql string, args pgx.NamedArgs, at time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.debug {
		return
	}
	db.log = append(db.log, QueryLogEntry{
		SQL:    sql,
		Params: maps.Clone(map[string]any(args)),
		Time:   at,
	})
}

// Stats holds statement counters for a DB.
type Stats struct {
	Statements    atomic.Int64
	Errors        atomic.Int64
	SlowQueries   atomic.Int64
	TotalDuration atomic.Int64 // nanoseconds
}

func (s *Stats) observe(d time.Duration, err error) {
	s.Statements.Add(1)
	s.TotalDuration.Add(int64(d))
	if err != nil {
		s.Errors.Add(1)
	}
}
