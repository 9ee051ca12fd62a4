// Package sqlxrepos implements the domain repositories on top of sqlx.
// Dynamic queries are composed with sqlboiler query mods and run through sqlx,
// so the same code serves PostgreSQL and SQLite.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/drivers"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/strmangle"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
)

type repo struct {
	exec core.DBExecutor
}

func (r repo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return r.exec
}

func usesIndexPlaceholders(exec core.DBExecutor) bool {
	return sqlx.BindType(exec.DriverName()) == sqlx.DOLLAR
}

// newQuery returns a sqlboiler query for the dialect of exec with mods applied.
func newQuery(exec core.DBExecutor, mods ...qm.QueryMod) *queries.Query {
	q := &queries.Query{}
	queries.SetDialect(q, &drivers.Dialect{
		LQ:                   '"',
		RQ:                   '"',
		UseIndexPlaceholders: usesIndexPlaceholders(exec),
	})
	qm.Apply(q, mods...)
	return q
}

func buildQuery(exec core.DBExecutor, mods ...qm.QueryMod) (string, []interface{}) {
	return queries.BuildQuery(newQuery(exec, mods...))
}

func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, mods ...qm.QueryMod) error {
	query, args := buildQuery(exec, mods...)
	return sqlx.SelectContext(ctx, exec, dest, query, args...)
}

func selectOne(ctx context.Context, exec core.DBExecutor, dest interface{}, mods ...qm.QueryMod) error {
	query, args := buildQuery(exec, mods...)
	return sqlx.GetContext(ctx, exec, dest, query, args...)
}

// exists reports whether the query built from mods returns a row.
func exists(ctx context.Context, exec core.DBExecutor, mods ...qm.QueryMod) (bool, error) {
	query, args := buildQuery(exec, append(mods, qm.Select("1 AS found"), qm.Limit(1))...)
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	found := rows.Next()
	return found, rows.Err()
}

// insert runs an INSERT ... RETURNING id.
func insert(ctx context.Context, exec core.DBExecutor, table string, cols []string, args ...interface{}) (int64, error) {
	query := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strmangle.Placeholders(usesIndexPlaceholders(exec), len(cols), 1, 1) + ") RETURNING id"
	var id int64
	if err := sqlx.GetContext(ctx, exec, &id, query, args...); err != nil {
		return 0, err
	}
	return id, nil
}

// insertMany inserts rows of len(cols) values each in one statement.
func insertMany(ctx context.Context, exec core.DBExecutor, table string, cols []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(rows)*len(cols))
	for _, row := range rows {
		args = append(args, row...)
	}
	query := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES " +
		strmangle.Placeholders(usesIndexPlaceholders(exec), len(args), 1, len(cols))
	_, err := exec.ExecContext(ctx, query, args...)
	return err
}

// update runs an UPDATE of cols by id and reports whether a row matched.
func update(ctx context.Context, exec core.DBExecutor, table string, id int64, cols []string, args ...interface{}) (bool, error) {
	return updateIf(ctx, exec, table, id, "", nil, cols, args...)
}

// updateIf updates the row only while cond holds. It reports whether a row was updated.
func updateIf(
	ctx context.Context,
	exec core.DBExecutor,
	table string,
	id int64,
	cond string,
	condArgs []interface{},
	cols []string,
	args ...interface{},
) (bool, error) {
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		sets = append(sets, col+" = ?")
	}
	query := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)
	if cond != "" {
		query += " AND (" + cond + ")"
		args = append(args, condArgs...)
	}
	res, err := exec.ExecContext(ctx, exec.Rebind(query), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func deleteByID(ctx context.Context, exec core.DBExecutor, table string, id int64) (bool, error) {
	res, err := exec.ExecContext(ctx, exec.Rebind("DELETE FROM "+table+" WHERE id = ?"), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// searchMod matches the keyword case-insensitively against any of cols.
// LIKE wildcards in the keyword match literally.
func searchMod(keyword string, cols ...string) qm.QueryMod {
	val := "%" + likeEscaper.Replace(strings.ToLower(keyword)) + "%"
	conds := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		conds = append(conds, "LOWER("+col+`) LIKE ? ESCAPE '\'`)
		args = append(args, val)
	}
	return qm.Where("("+strings.Join(conds, " OR ")+")", args...)
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

// scopeMods restricts rows to what scope allows, given the lead branch and owner columns.
func scopeMods(scope policy.Scope, branchCol, ownerCol string) []qm.QueryMod {
	if scope.All {
		return nil
	}
	var mods []qm.QueryMod
	if scope.BranchIDs != nil {
		if len(scope.BranchIDs) == 0 {
			mods = append(mods, qm.Where("1 = 0"))
		} else {
			mods = append(mods, qm.WhereIn(branchCol+" IN ?", int64Args(scope.BranchIDs)...))
		}
	}
	if scope.OwnerID != 0 {
		mods = append(mods, qm.Where(ownerCol+" = ?", scope.OwnerID))
	}
	if scope.BranchIDs == nil && scope.OwnerID == 0 {
		mods = append(mods, qm.Where("1 = 0"))
	}
	return mods
}

// dbTime normalizes times before they reach the database.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// trapNoRowsErr maps "no rows" errors to the notFound error of the repository.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}
