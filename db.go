package spinwheel

import (
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

var (
	dbOnce sync.Once
	dbConn *sqlx.DB
	dbErr  error
)

// GetDB returns the shared Postgres handle, or (nil, nil) when
// DATABASE_URL is unset (the server falls back to file stores).
func GetDB() (*sqlx.DB, error) {
	dbOnce.Do(func() {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			dbErr = nil
			return
		}
		config, err := pgx.ParseConfig(dsn)
		if err != nil {
			dbErr = err
			return
		}
		// Avoid "prepared statement already exists" with PgBouncer/Supabase: use simple protocol (no server-side prepared statements).
		config.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
		db := stdlib.OpenDB(*config)
		// Pool settings for pooled hosts: idle timeout 4m, limit open conns
		db.SetConnMaxIdleTime(4 * time.Minute)
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		dbConn = sqlx.NewDb(db, "pgx")
		dbErr = dbConn.Ping()
	})
	if dbErr != nil {
		return nil, dbErr
	}
	return dbConn, nil
}
