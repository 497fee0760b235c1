// Package mysqltest provides a scripted database/sql driver for exercising the
// MySQL stores without a server. Every statement must match the next scripted
// operation after whitespace normalisation.
package mysqltest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type opType int

const (
	opExec opType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

func (t opType) String() string {
	switch t {
	case opExec:
		return "exec"
	case opQuery:
		return "query"
	case opBegin:
		return "begin"
	case opCommit:
		return "commit"
	case opRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// Op 是一次预期的数据库操作。
type Op struct {
	typ       opType
	query     string
	args      []driver.Value
	checkArgs bool
	result    Result
	rows      Rows
	err       error
}

// Result 模拟 Exec 的返回。
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// driverResult 把 Result 适配为 driver.Result。
type driverResult struct{ r Result }

func (d driverResult) LastInsertId() (int64, error) { return d.r.LastInsertID, nil }
func (d driverResult) RowsAffected() (int64, error) { return d.r.RowsAffected, nil }

// Rows 模拟查询结果。
type Rows struct {
	Columns []string
	Values  [][]driver.Value
}

// Exec 期望一次写操作。
func Exec(query string, result Result) Op {
	return Op{typ: opExec, query: query, result: result}
}

// Query 期望一次查询。
func Query(query string, rows Rows) Op {
	return Op{typ: opQuery, query: query, rows: rows}
}

// Begin 期望开启事务。
func Begin() Op { return Op{typ: opBegin} }

// Commit 期望提交事务。
func Commit() Op { return Op{typ: opCommit} }

// Rollback 期望回滚事务。
func Rollback() Op { return Op{typ: opRollback} }

// WithError 让该操作返回指定错误。
func (o Op) WithError(err error) Op {
	o.err = err
	return o
}

// WithArgs 要求该操作的参数与给定值完全一致。
func (o Op) WithArgs(args ...driver.Value) Op {
	o.args = args
	o.checkArgs = true
	return o
}

// Driver 按顺序消费预期操作。
type Driver struct {
	mu  sync.Mutex
	ops []Op
	idx int
}

var driverSeq atomic.Int32

// NewDB 注册一个新的脚本驱动并返回连接。
func NewDB(t testing.TB, ops ...Op) (*sql.DB, *Driver) {
	t.Helper()

	drv := &Driver{ops: ops}
	name := fmt.Sprintf("mysqltest-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db, drv
}

// AssertConsumed 校验所有预期操作都已执行。
func (d *Driver) AssertConsumed(t testing.TB) {
	t.Helper()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.idx != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", d.idx, len(d.ops))
	}
}

// Open 实现 driver.Driver。
func (d *Driver) Open(string) (driver.Conn, error) {
	return &conn{driver: d}, nil
}

func (d *Driver) next(expected opType, query string, args []driver.NamedValue) (*Op, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected %s: %s", expected, normalizeSQL(query))
	}
	op := &d.ops[d.idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %s, got %s", op.typ, expected)
	}
	d.idx++
	if op.query != "" {
		want := normalizeSQL(op.query)
		got := normalizeSQL(query)
		if want != got {
			return nil, fmt.Errorf("unexpected query. want %q got %q", want, got)
		}
	}
	if op.checkArgs {
		got := make([]driver.Value, len(args))
		for i, arg := range args {
			got[i] = arg.Value
		}
		if !reflect.DeepEqual(op.args, got) {
			return nil, fmt.Errorf("unexpected args. want %v got %v", op.args, got)
		}
	}
	return op, nil
}

type conn struct {
	driver *Driver
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(opBegin, "", nil)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &tx{driver: c.driver}, nil
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query, args)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return driverResult{op.result}, nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query, args)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &rows{columns: op.rows.Columns, values: op.rows.Values}, nil
}

func (c *conn) Ping(context.Context) error { return nil }

type tx struct {
	driver *Driver
}

func (t *tx) Commit() error {
	op, err := t.driver.next(opCommit, "", nil)
	if err != nil {
		return err
	}
	return op.err
}

func (t *tx) Rollback() error {
	op, err := t.driver.next(opRollback, "", nil)
	if err != nil {
		return err
	}
	return op.err
}

type rows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *rows) Columns() []string { return r.columns }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
