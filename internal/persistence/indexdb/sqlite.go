// Package indexdb keeps a queryable sqlite index of client traffic: one row
// per flush, per dropped inbound frame and per connection change. The frame
// log stays the source of truth; the index may drop rows under load.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"worldsmith.dev/internal/network"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropFlush   atomic.Uint64
	dropDecode  atomic.Uint64
	dropSession atomic.Uint64
}

type reqKind int

const (
	reqFlush reqKind = iota + 1
	reqDecodeDrop
	reqSession
)

type req struct {
	kind reqKind

	flush   network.FlushReport
	drop    network.DropReport
	session SessionEvent
}

// SessionEvent records a connection state change.
type SessionEvent struct {
	At      time.Time
	Address string
	// Event is "connected" or "disconnected".
	Event  string
	Reason string
}

type Stats struct {
	DropFlushTotal   uint64
	DropDecodeTotal  uint64
	DropSessionTotal uint64
	QueueDepth       int
	QueueCapacity    int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS flushes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			sent INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			dropped INTEGER NOT NULL,
			remaining INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_flushes_at ON flushes(at);`,
		`CREATE TABLE IF NOT EXISTS decode_drops (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			code TEXT NOT NULL,
			size INTEGER NOT NULL,
			err TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decode_drops_code ON decode_drops(code, at);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			address TEXT NOT NULL,
			event TEXT NOT NULL,
			reason TEXT
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// ObserveFlush and ObserveDrop implement network.Observer. They never block;
// when the writer falls behind the row is dropped and counted.
func (s *SQLiteIndex) ObserveFlush(r network.FlushReport) {
	if !s.enqueue(req{kind: reqFlush, flush: r}) {
		s.dropFlush.Add(1)
	}
}

func (s *SQLiteIndex) ObserveDrop(r network.DropReport) {
	if !s.enqueue(req{kind: reqDecodeDrop, drop: r}) {
		s.dropDecode.Add(1)
	}
}

func (s *SQLiteIndex) RecordSession(ev SessionEvent) {
	if !s.enqueue(req{kind: reqSession, session: ev}) {
		s.dropSession.Add(1)
	}
}

func (s *SQLiteIndex) enqueue(r req) bool {
	if s == nil || s.closed.Load() {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		DropFlushTotal:   s.dropFlush.Load(),
		DropDecodeTotal:  s.dropDecode.Load(),
		DropSessionTotal: s.dropSession.Load(),
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
	}
}

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertFlush, _ := s.db.Prepare(`INSERT INTO flushes(at,sent,bytes,dropped,remaining) VALUES(?,?,?,?,?)`)
	insertDrop, _ := s.db.Prepare(`INSERT INTO decode_drops(at,code,size,err) VALUES(?,?,?,?)`)
	insertSession, _ := s.db.Prepare(`INSERT INTO sessions(at,address,event,reason) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertFlush, insertDrop, insertSession} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 512
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqFlush:
			f := r.flush
			exec(insertFlush, ts(f.At), f.Sent, f.Bytes, f.Dropped, f.Remaining)
		case reqDecodeDrop:
			d := r.drop
			exec(insertDrop, ts(d.At), d.Code, d.Size, d.Err)
		case reqSession:
			se := r.session
			exec(insertSession, ts(se.At), se.Address, se.Event, se.Reason)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
