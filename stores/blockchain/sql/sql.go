// Package sql is a kv.Engine on postgres or sqlite. All tables share one
// chain_rows table keyed by (tbl, k).
package sql

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/stores/blockchain/kv"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bitcoin-sv/chaincore/util"
	"github.com/bitcoin-sv/chaincore/util/usql"
)

type SQL struct {
	db     *usql.DB
	engine util.SQLEngine
	logger ulogger.Logger
}

func New(logger ulogger.Logger, storeURL *url.URL, dataFolder string) (*SQL, error) {
	logger = logger.New("bcsql")

	db, err := util.InitSQLDB(logger, storeURL, dataFolder)
	if err != nil {
		return nil, errors.NewStorageError("failed to init sql db", err)
	}

	engine := util.SQLEngine(storeURL.Scheme)

	if err = CreateSchema(db, engine); err != nil {
		return nil, err
	}

	return NewWithDB(logger, db, engine), nil
}

// NewWithDB uses an already opened database whose schema exists.
func NewWithDB(logger ulogger.Logger, db *usql.DB, engine util.SQLEngine) *SQL {
	return &SQL{
		db:     db,
		engine: engine,
		logger: logger,
	}
}

func (s *SQL) GetDB() *usql.DB {
	return s.db
}

func (s *SQL) GetDBEngine() util.SQLEngine {
	return s.engine
}

func CreateSchema(db *usql.DB, engine util.SQLEngine) error {
	switch engine {
	case util.Postgres:
		return createPostgresSchema(db)
	case util.Sqlite, util.SqliteMemory:
		return createSqliteSchema(db)
	}

	return errors.NewConfigurationError("unknown database engine: %s", engine)
}

func createPostgresSchema(db *usql.DB) error {
	if _, err := db.Exec(`
      CREATE TABLE IF NOT EXISTS chain_rows (
	    tbl  SMALLINT NOT NULL
	    ,k   BYTEA NOT NULL
	    ,v   BYTEA NOT NULL
	    ,PRIMARY KEY (tbl, k)
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create chain_rows table", err)
	}

	return nil
}

func createSqliteSchema(db *usql.DB) error {
	if _, err := db.Exec(`
      CREATE TABLE IF NOT EXISTS chain_rows (
	    tbl  INTEGER NOT NULL
	    ,k   BLOB NOT NULL
	    ,v   BLOB NOT NULL
	    ,PRIMARY KEY (tbl, k)
	  ) WITHOUT ROWID;
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create chain_rows table", err)
	}

	return nil
}

func (s *SQL) Get(ctx context.Context, table kv.Table, key []byte) ([]byte, error) {
	q := `SELECT v FROM chain_rows WHERE tbl = $1 AND k = $2`

	var value []byte

	if err := s.db.QueryRowContext(ctx, q, int(table), key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("%s key %x not found", table, key)
		}

		return nil, errors.NewStorageError("failed to read %s key %x", table, key, err)
	}

	return value, nil
}

func (s *SQL) Scan(ctx context.Context, table kv.Table, start, end []byte, fn func(key, value []byte) bool) error {
	var (
		rows *sql.Rows
		err  error
	)

	if start == nil {
		start = []byte{}
	}

	if end == nil {
		q := `SELECT k, v FROM chain_rows WHERE tbl = $1 AND k >= $2 ORDER BY k`
		rows, err = s.db.QueryContext(ctx, q, int(table), start)
	} else {
		q := `SELECT k, v FROM chain_rows WHERE tbl = $1 AND k >= $2 AND k < $3 ORDER BY k`
		rows, err = s.db.QueryContext(ctx, q, int(table), start, end)
	}

	if err != nil {
		return errors.NewStorageError("failed to scan %s", table, err)
	}

	defer rows.Close()

	for rows.Next() {
		var key, value []byte

		if err = rows.Scan(&key, &value); err != nil {
			return errors.NewStorageError("failed to scan %s row", table, err)
		}

		if !fn(key, value) {
			return nil
		}
	}

	if err = rows.Err(); err != nil {
		return errors.NewStorageError("failed to scan %s", table, err)
	}

	return nil
}

func (s *SQL) Apply(ctx context.Context, batch *kv.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError("failed to begin transaction", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	upsert := `
		INSERT INTO chain_rows (tbl, k, v) VALUES ($1, $2, $3)
		ON CONFLICT (tbl, k) DO UPDATE SET v = excluded.v
	`
	remove := `DELETE FROM chain_rows WHERE tbl = $1 AND k = $2`

	for _, op := range batch.Ops {
		if op.Delete {
			_, err = tx.ExecContext(ctx, remove, int(op.Table), op.Key)
		} else {
			_, err = tx.ExecContext(ctx, upsert, int(op.Table), op.Key, op.Value)
		}

		if err != nil {
			return errors.NewStorageError("failed to write %s key %x", op.Table, op.Key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.NewStorageError("failed to commit batch of %d rows", batch.Len(), err)
	}

	return nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}
