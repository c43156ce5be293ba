package recorder

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

var log = logrus.WithField("component", "recorder")

// SQLiteRecorder persists bets and session summaries to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	// WAL：分析脚本读取时不阻塞写入
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Infof("sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bets (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id   TEXT NOT NULL,
			seq          INTEGER NOT NULL,
			bet_id       TEXT,
			strategy     TEXT,
			phase        TEXT,
			kind         TEXT,
			stake        TEXT NOT NULL,
			probability  TEXT NOT NULL,
			high         INTEGER,
			range_low    INTEGER,
			range_high   INTEGER,
			won          INTEGER NOT NULL,
			profit       TEXT NOT NULL,
			balance      TEXT NOT NULL,
			roll         REAL,
			timestamp    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_session ON bets(session_id, seq)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			session_id    TEXT PRIMARY KEY,
			strategy      TEXT,
			currency      TEXT,
			dry_run       INTEGER,
			started_at    INTEGER,
			ended_at      INTEGER,
			end_reason    TEXT,
			start_balance TEXT,
			end_balance   TEXT,
			bets          INTEGER,
			wins          INTEGER,
			summary       TEXT
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *SQLiteRecorder) RecordBet(rec *BetRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO bets (
		session_id, seq, bet_id, strategy, phase, kind, stake, probability, high,
		range_low, range_high, won, profit, balance, roll, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Seq, rec.BetID, rec.Strategy, rec.Phase, rec.Kind,
		dicemath.FormatMoney(rec.Stake), dicemath.FormatProbability(rec.Probability), boolInt(rec.High),
		rec.RangeLow, rec.RangeHigh, boolInt(rec.Won),
		dicemath.FormatMoney(rec.Profit), dicemath.FormatMoney(rec.Balance), rec.Roll, rec.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert bet: %w", err)
	}
	return nil
}

// RecordSession 同一会话重复写入时覆盖
func (r *SQLiteRecorder) RecordSession(rec *SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR REPLACE INTO sessions (
		session_id, strategy, currency, dry_run, started_at, ended_at, end_reason,
		start_balance, end_balance, bets, wins, summary
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Strategy, rec.Currency, boolInt(rec.DryRun),
		rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli(), rec.EndReason,
		dicemath.FormatMoney(rec.StartBalance), dicemath.FormatMoney(rec.EndBalance),
		rec.Bets, rec.Wins, rec.SummaryJSON,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionStats 统计某会话已记录的注数与胜场
func (r *SQLiteRecorder) SessionStats(sessionID string) (bets, wins int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(won), 0) FROM bets WHERE session_id = ?`, sessionID)
	if err := row.Scan(&bets, &wins); err != nil {
		return 0, 0, fmt.Errorf("query session stats: %w", err)
	}
	return bets, wins, nil
}

// EndReason 查询会话结束原因
func (r *SQLiteRecorder) EndReason(sessionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var reason string
	if err := r.db.QueryRow(`SELECT end_reason FROM sessions WHERE session_id = ?`, sessionID).Scan(&reason); err != nil {
		return "", fmt.Errorf("query session: %w", err)
	}
	return reason, nil
}

func (r *SQLiteRecorder) Close() error {
	log.Info("closing sqlite recorder")
	return r.db.Close()
}
