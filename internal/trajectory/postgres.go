package trajectory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresSink mirrors every trajectory record into a Postgres table,
// adapted from the teacher's persistence connection-pool idiom
// (pgxpool.Pool, best-effort writes that never fail the run; each insert
// blocks the recorder for up to the sink's timeout, and a failure is only
// logged). DDL is not managed here; callers run the companion migration once.
type PostgresSink struct {
	pool    *pgxpool.Pool
	table   string
	timeout time.Duration
}

// NewPostgresSink connects to dsn and returns a sink that inserts into
// table (default "trajectory_records" when empty).
func NewPostgresSink(ctx context.Context, dsn, table string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if table == "" {
		table = "trajectory_records"
	}
	return &PostgresSink{pool: pool, table: table, timeout: 5 * time.Second}, nil
}

func (s *PostgresSink) Write(rec Record) {
	if s == nil || s.pool == nil {
		return
	}
	data, err := json.Marshal(rec.Data)
	if err != nil {
		data = []byte("{}")
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table+` (run_id, kind, call_id, iteration, ts, data) VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.RunID, rec.Kind, rec.CallID, rec.Iteration, rec.Timestamp, data)
	if err != nil {
		log.Warn().Err(err).Str("kind", rec.Kind).Msg("trajectory postgres mirror write failed")
	}
}

func (s *PostgresSink) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
