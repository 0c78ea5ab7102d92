package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/monishk/shardsearch/pkg/metrics"
	"github.com/monishk/shardsearch/pkg/postgres"
	"github.com/monishk/shardsearch/pkg/resilience"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv_store (
	key   TEXT PRIMARY KEY,
	value BYTEA NOT NULL
)`

// PostgresKV implements KV on top of a single kv_store(key, value) table,
// using ORDER BY key for prefix scans and a transaction for atomic batch
// writes — the concrete backing named in the KV store adapter's role.
type PostgresKV struct {
	client *postgres.Client
	cb     *resilience.CircuitBreaker
	m      *metrics.Metrics
}

// NewPostgresKV opens client's kv_store table (creating it if absent) and
// returns a KV backed by it.
func NewPostgresKV(client *postgres.Client, m *metrics.Metrics) (*PostgresKV, error) {
	if _, err := client.DB.Exec(kvSchema); err != nil {
		return nil, fmt.Errorf("creating kv_store table: %w", err)
	}
	return &PostgresKV{
		client: client,
		cb:     resilience.NewCircuitBreaker("kv-store", resilience.CircuitBreakerConfig{}),
		m:      m,
	}, nil
}

func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.cb.Execute(func() error {
		row := p.client.DB.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = $1`, key)
		return row.Scan(&value)
	})
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

func (p *PostgresKV) Put(ctx context.Context, key string, value []byte) error {
	return p.BatchWrite(ctx, []WriteOp{Put(key, value)})
}

func (p *PostgresKV) Remove(ctx context.Context, key string) error {
	return p.BatchWrite(ctx, []WriteOp{Delete(key)})
}

// BatchWrite applies ops inside a single transaction, standing in for the
// spec's atomic batch write.
func (p *PostgresKV) BatchWrite(ctx context.Context, ops []WriteOp) error {
	start := time.Now()
	err := p.cb.Execute(func() error {
		return p.client.InTx(ctx, func(tx *sql.Tx) error {
			for _, op := range ops {
				if op.Remove {
					if _, err := tx.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, op.Key); err != nil {
						return fmt.Errorf("deleting key %s: %w", op.Key, err)
					}
					continue
				}
				_, err := tx.ExecContext(ctx, `
					INSERT INTO kv_store (key, value) VALUES ($1, $2)
					ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
					op.Key, op.Value)
				if err != nil {
					return fmt.Errorf("upserting key %s: %w", op.Key, err)
				}
			}
			return nil
		})
	})
	if p.m != nil {
		p.m.KVBatchWriteDuration.WithLabelValues("").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("kv batch write of %d ops: %w", len(ops), err)
	}
	return nil
}

// Scan returns all entries whose key begins with prefix, in ascending key
// order — the ORDER BY key clause standing in for the assumed ordered
// byte-map's native range scan.
func (p *PostgresKV) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	var entries []Entry
	err := p.cb.Execute(func() error {
		rows, err := p.client.DB.QueryContext(ctx,
			`SELECT key, value FROM kv_store WHERE key LIKE $1 ORDER BY key ASC`,
			escapeLikePrefix(prefix)+"%")
		if err != nil {
			return err
		}
		defer rows.Close()
		entries = nil
		for rows.Next() {
			var e Entry
			if err := rows.Scan(&e.Key, &e.Value); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("kv scan prefix %s: %w", prefix, err)
	}
	return entries, nil
}

func (p *PostgresKV) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := p.Get(ctx, key)
	return ok, err
}

func (p *PostgresKV) Close() error {
	return p.client.Close()
}

// escapeLikePrefix escapes LIKE metacharacters so scan prefixes containing
// '_' or '%' (both valid in collection names) match literally.
func escapeLikePrefix(prefix string) string {
	out := make([]byte, 0, len(prefix))
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '_' || c == '%' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
