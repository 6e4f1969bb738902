package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
)

// execLog records every statement a repository executes, with scripted
// affected-row counts, so write guards can be checked without MySQL.
type execLog struct {
	queries      []string
	args         [][]driver.Value
	rowsAffected int64
}

var currentExecLog *execLog

type execDriver struct{}

func (execDriver) Open(string) (driver.Conn, error) {
	return &execConn{log: currentExecLog}, nil
}

func init() {
	sql.Register("execfake", execDriver{})
}

type execConn struct {
	log *execLog
}

func (c *execConn) Prepare(query string) (driver.Stmt, error) {
	return &execStmt{query: query, log: c.log}, nil
}

func (c *execConn) Close() error              { return nil }
func (c *execConn) Begin() (driver.Tx, error) { return nil, errors.New("transactions not supported") }

type execStmt struct {
	query string
	log   *execLog
}

func (s *execStmt) Close() error  { return nil }
func (s *execStmt) NumInput() int { return -1 }

func (s *execStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.log.queries = append(s.log.queries, s.query)
	s.log.args = append(s.log.args, args)
	return driver.RowsAffected(s.log.rowsAffected), nil
}

func (s *execStmt) Query([]driver.Value) (driver.Rows, error) {
	return nil, errors.New("queries not supported")
}

func execTestDB(t *testing.T, log *execLog) *sql.DB {
	t.Helper()
	currentExecLog = log
	db, err := sql.Open("execfake", "")
	if err != nil {
		t.Fatalf("open fake db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMarkUsedIsOneShot(t *testing.T) {
	log := &execLog{rowsAffected: 1}
	repo := NewRegistrationRepository(execTestDB(t, log))

	if err := repo.MarkUsed(context.Background(), "ABCD1234", "u1", "a@b.com"); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if len(log.queries) != 1 {
		t.Fatalf("got %d statements, want 1", len(log.queries))
	}
	// The unused guard is what keeps a second consumer from rewriting the
	// first one's used_by fields.
	if !strings.Contains(log.queries[0], "is_used = 0") {
		t.Errorf("update must only match unconsumed codes, got: %s", log.queries[0])
	}
}

func TestMarkUsedRepeatIsNoOp(t *testing.T) {
	log := &execLog{rowsAffected: 0}
	repo := NewRegistrationRepository(execTestDB(t, log))

	if err := repo.MarkUsed(context.Background(), "ABCD1234", "u2", "c@d.com"); err != nil {
		t.Errorf("repeat MarkUsed must succeed as a no-op, got %v", err)
	}
}
