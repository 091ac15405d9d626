// Package journal 把副本确认的交易按确认顺序写入 SQLite，重启时据此恢复副本。
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"p2pio/ledger"
)

// ErrClosed journal 已关闭
var ErrClosed = errors.New("journal closed")

// SQLiteJournal 单写协程，Append 只入队
type SQLiteJournal struct {
	db  *sql.DB
	log *zap.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan ledger.Entry
	wg     sync.WaitGroup
	once   sync.Once
}

// OpenSQLite 打开（或创建）journal 数据库
func OpenSQLite(path string, log *zap.Logger) (*SQLiteJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty journal path")
	}
	if log == nil {
		log = zap.NewNop()
	}
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
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &SQLiteJournal{
		db:  db,
		log: log,
		ch:  make(chan ledger.Entry, 4096),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
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
		`CREATE TABLE IF NOT EXISTS transactions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			hash TEXT NOT NULL UNIQUE,
			sender TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			function TEXT NOT NULL,
			tx_json TEXT NOT NULL,
			updates_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS transactions_sender ON transactions(sender);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Append 入队一笔已确认交易；队列满时阻塞，不丢弃
func (j *SQLiteJournal) Append(tx *ledger.Transaction, updates ledger.Updates) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}
	j.ch <- ledger.Entry{Tx: tx, Updates: updates}
	return nil
}

func (j *SQLiteJournal) loop() {
	insert, err := j.db.Prepare(`INSERT OR IGNORE INTO transactions(hash,sender,timestamp,function,tx_json,updates_json) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		j.log.Error("journal prepare failed", zap.Error(err))
		for range j.ch {
		}
		return
	}
	defer insert.Close()

	for e := range j.ch {
		if err := j.write(insert, e); err != nil {
			j.log.Error("journal write failed", zap.Stringer("tx", e.Tx.Hash), zap.Error(err))
		}
	}
}

func (j *SQLiteJournal) write(insert *sql.Stmt, e ledger.Entry) error {
	txJSON, err := json.Marshal(e.Tx)
	if err != nil {
		return err
	}
	upJSON, err := json.Marshal(e.Updates)
	if err != nil {
		return err
	}
	function := "deploy"
	if call, ok := e.Tx.ContractCall(); ok {
		function = call.Function
	}
	_, err = insert.Exec(e.Tx.Hash.String(), e.Tx.Sender.String(), int64(e.Tx.Timestamp), function, string(txJSON), string(upJSON))
	return err
}

// Load 按确认顺序读出全部条目
func (j *SQLiteJournal) Load(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT tx_json, updates_json FROM transactions ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var txJSON, upJSON string
		if err := rows.Scan(&txJSON, &upJSON); err != nil {
			return nil, err
		}
		var e ledger.Entry
		if err := json.Unmarshal([]byte(txJSON), &e.Tx); err != nil {
			return nil, fmt.Errorf("decode tx %d: %w", len(out), err)
		}
		if err := json.Unmarshal([]byte(upJSON), &e.Updates); err != nil {
			return nil, fmt.Errorf("decode updates %d: %w", len(out), err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close 等待队列写完后关闭数据库
func (j *SQLiteJournal) Close() error {
	var err error
	j.once.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.ch)
		j.mu.Unlock()
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}
