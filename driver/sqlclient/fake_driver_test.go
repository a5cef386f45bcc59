package sqlclient

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
)

// recordingDriver is a database/sql driver that records prepared queries and
// returns no rows.
type recordingDriver struct {
	mu      sync.Mutex
	queries []string
	pingErr error
}

func (d *recordingDriver) Open(string) (driver.Conn, error) { return &recordingConn{d: d}, nil }

func (d *recordingDriver) record(q string) {
	d.mu.Lock()
	d.queries = append(d.queries, q)
	d.mu.Unlock()
}

func (d *recordingDriver) seen() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.queries...)
}

type recordingConn struct{ d *recordingDriver }

func (c *recordingConn) Prepare(q string) (driver.Stmt, error) {
	c.d.record(q)
	return recordingStmt{}, nil
}
func (c *recordingConn) Close() error              { return nil }
func (c *recordingConn) Begin() (driver.Tx, error) { return nil, errors.New("not impl") }
func (c *recordingConn) Ping(context.Context) error {
	return c.d.pingErr
}

type recordingStmt struct{}

func (recordingStmt) Close() error                               { return nil }
func (recordingStmt) NumInput() int                              { return -1 }
func (recordingStmt) Exec([]driver.Value) (driver.Result, error) { return driver.RowsAffected(1), nil }
func (recordingStmt) Query([]driver.Value) (driver.Rows, error)  { return emptyRows{}, nil }

type emptyRows struct{}

func (emptyRows) Columns() []string         { return []string{"v", "ea"} }
func (emptyRows) Close() error              { return nil }
func (emptyRows) Next([]driver.Value) error { return io.EOF }

var (
	recorder   = &recordingDriver{}
	pingFailer = &recordingDriver{pingErr: errors.New("ping boom")}
)

func init() {
	sql.Register("sqlclient-recording", recorder)
	sql.Register("sqlclient-pingfail", pingFailer)
}
