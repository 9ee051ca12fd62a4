package core

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext

		Exec(query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	}
)

// WithTx runs fn inside a transaction, committing on success and rolling back on error or panic.
func WithTx(ctx context.Context, db DB, fn func(tx DBExecutor) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderBy renders orderings whose field is a key of allowed, mapped to the column it stands for.
// Unknown fields are dropped; fallback is used when nothing remains.
func OrderBy(orderings []DBOrdering, allowed map[string]string, fallback string) string {
	list := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		list = append(list, DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(list) == 0 {
		return fallback
	}
	return strings.Join(list, ", ")
}

const (
	DefaultPerPage = 25
	MaxPerPage     = 100
)

type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Clean applies the default and maximum page sizes.
func (p *Pagination) Clean() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
}

func (p Pagination) Limit() int  { return p.PerPage }
func (p Pagination) Offset() int { return (p.Page - 1) * p.PerPage }

// Page is the list envelope of paginated queries.
type Page[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

func NewPage[T any](items []T, total int, p Pagination) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: p.Page, PerPage: p.PerPage}
}
