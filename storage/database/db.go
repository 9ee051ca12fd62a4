package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/fs"
)

const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(EngineSQLite, sqlx.QUESTION)
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   EnginePostgres,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sqlx.Open(EnginePostgres, u.String())
}

// sqliteDSN enables foreign keys and stores times in a sortable text format.
func sqliteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	q := make(url.Values)
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Set("_time_format", "sqlite")
	return path + "?" + q.Encode()
}

// Open connects to the configured database engine.
func Open(conf *core.Config) (*sqlx.DB, error) {
	switch conf.Database.Engine {
	case EnginePostgres, "":
		return open(conf.Database.Name, false, conf)
	case EngineSQLite:
		db, err := sqlx.Open(EngineSQLite, sqliteDSN(conf.Database.Path))
		if err != nil {
			return nil, err
		}
		// a single connection serializes writers and keeps ":memory:" databases alive
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		return db, nil
	}
	return nil, errors.Errorf("unsupported database engine %q", conf.Database.Engine)
}

// Ping waits for the database to be ready. Waits 100ms longer between each attempt.
func Ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping cancelled")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sqlx.DB, query string, arg string) (bool, error) {
	var found bool
	err := db.Get(&found, query, arg)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return found, err
}

// quoteIdent quotes a PostgreSQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral quotes a PostgreSQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD %s",
			quoteIdent(conf.Database.User), quoteLiteral(conf.Database.Password))
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec("CREATE DATABASE " + quoteIdent(conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the PostgreSQL app user and database when missing.
// SQLite databases are created on open.
func CreateIfNotExist(ctx context.Context, conf *core.Config) error {
	if conf.Database.Engine == EngineSQLite {
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = Ping(ctx, db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	if err = createDB(appDB, conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

func gooseDialect(driverName string) string {
	if driverName == EngineSQLite {
		return "sqlite3"
	}
	return EnginePostgres
}

// RunMigrations runs a goose command (up, down, status, version, ...) on the embedded migrations.
func RunMigrations(ctx context.Context, db *sqlx.DB, command string, args ...string) error {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect(gooseDialect(db.DriverName())); err != nil {
		return errors.Wrap(err, "setting migrations dialect")
	}
	return goose.RunContext(ctx, command, db.DB, appfs.MigrationsDir(db.DriverName()), args...)
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if err := RunMigrations(ctx, db, "up"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
