package crank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	resultSettled  = "settled"
	resultOverflow = "overflow"
	resultFailed   = "failed"
	resultCooldown = "cooldown"
)

// Attempt is one SettleFunds submission and how it ended.
type Attempt struct {
	Pool       solana.PublicKey
	OpenOrders solana.PublicKey
	Market     solana.PublicKey
	Result     string
	Signature  solana.Signature
	Err        string
	At         time.Time
}

// Journal remembers settle attempts so a restarted crank keeps honoring cooldowns.
type Journal interface {
	Record(ctx context.Context, attempt Attempt) error
	// LastAttempt returns the most recent attempt against pool.
	LastAttempt(ctx context.Context, pool solana.PublicKey) (Attempt, bool, error)
	Close() error
}

type memoryJournal struct {
	mu   sync.Mutex
	last map[solana.PublicKey]Attempt
}

func NewMemoryJournal() Journal {
	return &memoryJournal{last: make(map[solana.PublicKey]Attempt)}
}

func (j *memoryJournal) Record(_ context.Context, attempt Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if prev, ok := j.last[attempt.Pool]; ok && prev.At.After(attempt.At) {
		return nil
	}
	j.last[attempt.Pool] = attempt
	return nil
}

func (j *memoryJournal) LastAttempt(_ context.Context, pool solana.PublicKey) (Attempt, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	attempt, ok := j.last[pool]
	return attempt, ok, nil
}

func (j *memoryJournal) Close() error { return nil }

type postgresJournal struct {
	db *sql.DB
}

// NewPostgresJournal opens dsn through the pgx driver and creates the attempts table.
func NewPostgresJournal(ctx context.Context, dsn string) (Journal, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(4)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	j := &postgresJournal{db: db}
	if err := j.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *postgresJournal) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS settle_attempts (
			id BIGSERIAL PRIMARY KEY,
			pool TEXT NOT NULL,
			open_orders TEXT NOT NULL,
			market TEXT NOT NULL,
			result TEXT NOT NULL,
			signature TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			attempted_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_settle_attempts_pool_time ON settle_attempts(pool, attempted_at DESC);`,
	}
	for _, stmt := range ddl {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate settle_attempts: %w", err)
		}
	}
	return nil
}

func (j *postgresJournal) Record(ctx context.Context, attempt Attempt) error {
	signature := ""
	if !attempt.Signature.IsZero() {
		signature = attempt.Signature.String()
	}
	_, err := j.db.ExecContext(ctx, rebindPostgresPlaceholders(
		`INSERT INTO settle_attempts (pool, open_orders, market, result, signature, error, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		attempt.Pool.String(),
		attempt.OpenOrders.String(),
		attempt.Market.String(),
		attempt.Result,
		signature,
		attempt.Err,
		attempt.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert settle attempt: %w", err)
	}
	return nil
}

func (j *postgresJournal) LastAttempt(ctx context.Context, pool solana.PublicKey) (Attempt, bool, error) {
	row := j.db.QueryRowContext(ctx, rebindPostgresPlaceholders(
		`SELECT open_orders, market, result, signature, error, attempted_at
		FROM settle_attempts WHERE pool = ? ORDER BY attempted_at DESC, id DESC LIMIT 1`),
		pool.String(),
	)
	var (
		openOrders, market, result, signature, errText string
		at                                             int64
	)
	err := row.Scan(&openOrders, &market, &result, &signature, &errText, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, fmt.Errorf("query last settle attempt: %w", err)
	}

	attempt := Attempt{Pool: pool, Result: result, Err: errText, At: time.UnixMilli(at)}
	if attempt.OpenOrders, err = solana.PublicKeyFromBase58(openOrders); err != nil {
		return Attempt{}, false, fmt.Errorf("parse open_orders %q: %w", openOrders, err)
	}
	if attempt.Market, err = solana.PublicKeyFromBase58(market); err != nil {
		return Attempt{}, false, fmt.Errorf("parse market %q: %w", market, err)
	}
	if signature != "" {
		if attempt.Signature, err = solana.SignatureFromBase58(signature); err != nil {
			return Attempt{}, false, fmt.Errorf("parse signature %q: %w", signature, err)
		}
	}
	return attempt, true, nil
}

func (j *postgresJournal) Close() error {
	return j.db.Close()
}

func rebindPostgresPlaceholders(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 16)

	arg := 1
	inSingleQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			out.WriteByte(ch)
			if inSingleQuote {
				// Two single quotes inside a literal are an escaped quote.
				if i+1 < len(query) && query[i+1] == '\'' {
					out.WriteByte(query[i+1])
					i++
					continue
				}
				inSingleQuote = false
			} else {
				inSingleQuote = true
			}
			continue
		}
		if ch == '?' && !inSingleQuote {
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(arg))
			arg++
			continue
		}
		out.WriteByte(ch)
	}
	return out.String()
}
