// Package store keeps the trip event log in an embedded in-memory
// sqlite database and answers the canned reports and ad-hoc SQL over it.
//
// Two tables:
//
//	triplog:     id INTEGER | long REAL | lat REAL | type INTEGER | fare_cents INTEGER
//	tripsummary: id INTEGER | begin INTEGER | end INTEGER
//
// triplog is the denormalized log of every begin, update, and end
// message. Fares are stored as cents; floating point dollars invite
// round-off errors. long and lat are REAL but arrive in minute.second
// format, so any geographic math has to convert to base 10 first.
//
// tripsummary holds the begin and end time for each trip (end is NULL
// while the trip is active) and exists to answer which trips were
// active when. Times are unix seconds in UTC.
//
// The store is not safe for concurrent use. The event loop owns it
// from a single thread, and the sql pool is pinned to one connection
// so every prepared statement always runs against the same in-memory
// database.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// EventKind is the triplog row type
type EventKind int

const (
	// EventBegin is the first row of a trip
	EventBegin EventKind = 0
	// EventTransit is a position update row
	EventTransit EventKind = 1
	// EventEnd is the final row of a trip and carries the fare
	EventEnd EventKind = 2
)

// StoreError is a failure from the underlying sqlite engine
type StoreError string

func (e StoreError) Error() string {
	return string(e)
}

const (
	// ErrStoreStep means the engine rejected an insert or update
	ErrStoreStep StoreError = "store step failed"
)

const ddlSQL = `
CREATE TABLE triplog(id INTEGER,
                     long REAL,
                     lat REAL,
                     type INTEGER,
                     fare_cents INTEGER DEFAULT 0);
CREATE INDEX lat_long_idx ON triplog(lat, long, type, id, fare_cents);
CREATE INDEX type_idx ON triplog(id, type);
CREATE TABLE tripsummary(id INTEGER,
                         begin INTEGER,
                         end INTEGER);
CREATE INDEX summary_id_index ON tripsummary(id);
CREATE INDEX summary_time_index ON tripsummary(begin, end, id);
`

const (
	insertSQL        = "INSERT INTO triplog VALUES(?, ?, ?, ?, ?);"
	insertSummarySQL = "INSERT INTO tripsummary VALUES(?, ?, NULL);"
	updateSummarySQL = "UPDATE tripsummary SET end = ? WHERE id = ?;"
)

// Report queries. lat and long lead the covering index, so reports 1
// and 2 stay O(log n + k) for k matching rows; begin and end lead the summary
// index for report 3.
const (
	report1SQL = "SELECT COUNT(DISTINCT id) FROM triplog WHERE " +
		"lat BETWEEN ? AND ? AND long BETWEEN ? AND ?;"
	report2SQL = "SELECT COUNT(DISTINCT id), SUM(fare_cents) FROM triplog WHERE " +
		"lat BETWEEN ? AND ? AND long BETWEEN ? AND ? AND (type = 0 OR type = 2);"
	report3SQL = "SELECT COUNT(DISTINCT id) FROM tripsummary WHERE " +
		"begin <= ? AND (end IS NULL OR end >= ?);"
)

// Store owns the database handle and the prepared statement cache.
// Statements are prepared once at Open and reused for every call.
type Store struct {
	db            *sql.DB
	insert        *sql.Stmt
	insertSummary *sql.Stmt
	updateSummary *sql.Stmt
	reports       [3]*sql.Stmt

	// now is swappable so tests can pin the clock
	now func() time.Time
}

// Open creates the in-memory database, runs the DDL, and prepares the
// insert, summary, and report statements.
func Open() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory db: %w", err)
	}

	// A second pool connection would be a second empty database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(ddlSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog: %w", err)
	}

	s := &Store{db: db, now: time.Now}

	prepared := []struct {
		sql  string
		stmt **sql.Stmt
	}{
		{insertSQL, &s.insert},
		{insertSummarySQL, &s.insertSummary},
		{updateSummarySQL, &s.updateSummary},
		{report1SQL, &s.reports[0]},
		{report2SQL, &s.reports[1]},
		{report3SQL, &s.reports[2]},
	}
	for _, p := range prepared {
		stmt, err := db.Prepare(p.sql)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("prepare %q: %w", p.sql, err)
		}
		*p.stmt = stmt
	}

	return s, nil
}

// AddTripData is the entrypoint for all rows in the database. It
// inserts one triplog row, and maintains tripsummary: a BEGIN inserts
// the summary row stamped with the current UTC time, an END stamps the
// end time on the existing row. A summary failure after the log insert
// is reported but the log row stays.
func (s *Store) AddTripData(id int32, lng, lat float32, kind EventKind, cents int32) error {
	if _, err := s.insert.Exec(id, lng, lat, int(kind), cents); err != nil {
		return fmt.Errorf("%w: insert triplog: %v", ErrStoreStep, err)
	}

	switch kind {
	case EventBegin:
		if _, err := s.insertSummary.Exec(id, s.now().Unix()); err != nil {
			return fmt.Errorf("%w: insert tripsummary: %v", ErrStoreStep, err)
		}
	case EventEnd:
		if _, err := s.updateSummary.Exec(s.now().Unix(), id); err != nil {
			return fmt.Errorf("%w: update tripsummary: %v", ErrStoreStep, err)
		}
	}
	return nil
}

// Close finalizes the prepared statements and shuts down the database
func (s *Store) Close() error {
	stmts := []*sql.Stmt{
		s.insert, s.insertSummary, s.updateSummary,
		s.reports[0], s.reports[1], s.reports[2],
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}
