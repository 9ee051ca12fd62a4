package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
)

var userColumns = []string{
	"name", "username", "email", "role", "is_active", "password_hash", "created_at", "updated_at", "last_login",
}

type userRow struct {
	ID           int64       `db:"id"`
	Name         string      `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	Role         string      `db:"role"`
	IsActive     bool        `db:"is_active"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    null.Time   `db:"created_at"`
	UpdatedAt    null.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func (row userRow) unboil() user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		Role:         row.Role,
		BranchIDs:    []int64{},
		IsActive:     row.IsActive,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.Time.UTC(),
		UpdatedAt:    row.UpdatedAt.Time.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	return usr
}

func userArgs(usr user.User) []interface{} {
	return []interface{}{
		usr.Name,
		null.NewString(usr.Username, usr.Username != ""),
		null.NewString(usr.Email, usr.Email != ""),
		usr.Role,
		usr.IsActive,
		usr.PasswordHash,
		dbTime(usr.CreatedAt),
		dbTime(usr.UpdatedAt),
		null.NewTime(dbTime(usr.LastLogin), !usr.LastLogin.IsZero()),
	}
}

type userRepository struct {
	repo
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repo{exec: exec}}
}

func (r userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs []int64, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	check := func(col, val string, errExists error) error {
		if val == "" {
			return nil
		}
		mods := []qm.QueryMod{qm.From("users"), qm.Where(col+" = ?", val)}
		if len(excludedIDs) > 0 {
			mods = append(mods, qm.WhereIn("id NOT IN ?", int64Args(excludedIDs)...))
		}
		found, err := exists(ctx, exe, mods...)
		if err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if found {
			return errExists
		}
		return nil
	}
	if err := check("username", username, user.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, user.ErrEmailExists)
}

// loadBranches fills the BranchIDs of users.
func (r userRepository) loadBranches(ctx context.Context, exe core.DBExecutor, users []user.User) error {
	if len(users) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(users))
	idx := make(map[int64]int, len(users))
	for i, u := range users {
		ids = append(ids, u.ID)
		idx[u.ID] = i
	}

	query, args, err := sqlx.In("SELECT user_id, branch_id FROM user_branches WHERE user_id IN (?) ORDER BY branch_id", ids)
	if err != nil {
		return err
	}
	var links []struct {
		UserID   int64 `db:"user_id"`
		BranchID int64 `db:"branch_id"`
	}
	if err = sqlx.SelectContext(ctx, exe, &links, exe.Rebind(query), args...); err != nil {
		return err
	}
	for _, link := range links {
		u := &users[idx[link.UserID]]
		u.BranchIDs = append(u.BranchIDs, link.BranchID)
	}
	return nil
}

func (r userRepository) setBranches(ctx context.Context, exe core.DBExecutor, userID int64, branchIDs []int64) error {
	if _, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM user_branches WHERE user_id = ?"), userID); err != nil {
		return err
	}
	rows := make([][]interface{}, 0, len(branchIDs))
	for _, id := range branchIDs {
		rows = append(rows, []interface{}{userID, id})
	}
	return insertMany(ctx, exe, "user_branches", []string{"user_id", "branch_id"}, rows)
}

func (r userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := r.getExec(exec)
	id, err := insert(ctx, exe, "users", userColumns, userArgs(usr)...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	if err = r.setBranches(ctx, exe, id, usr.BranchIDs); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user branches")
	}
	return r.GetUser(ctx, user.GetFilter{ID: id}, exe)
}

func (r userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	exe := r.getExec(exec)
	mods := []qm.QueryMod{qm.Select("*"), qm.From("users")}

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			mods = append(mods, searchMod(filter.Search, "name", "username", "email"))
		}
		if len(filter.Roles) > 0 {
			roles := make([]interface{}, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roles = append(roles, role)
			}
			mods = append(mods, qm.WhereIn("role IN ?", roles...))
		}
		if len(filter.BranchIDs) > 0 {
			mods = append(mods, qm.WhereIn(
				"id IN (SELECT user_id FROM user_branches WHERE branch_id IN ?)", int64Args(filter.BranchIDs)...))
		}
		if filter.IsActive != nil {
			mods = append(mods, qm.Where("is_active = ?", *filter.IsActive))
		}
		if !filter.CreatedFrom.IsZero() {
			mods = append(mods, qm.Where("created_at >= ?", dbTime(filter.CreatedFrom)))
		}
		if !filter.CreatedTo.IsZero() {
			mods = append(mods, qm.Where("created_at <= ?", dbTime(filter.CreatedTo)))
		}
	}
	mods = append(mods, qm.OrderBy(core.OrderBy(ordering, user.SortableFields, "id ASC")))

	var rows []userRow
	if err := selectAll(ctx, exe, &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.unboil())
	}
	if err := r.loadBranches(ctx, exe, users); err != nil {
		return nil, errors.Wrap(err, "loading user branches")
	}
	return users, nil
}

func (r userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	exe := r.getExec(exec)
	mods := []qm.QueryMod{qm.Select("*"), qm.From("users")}
	switch {
	case filter.ID != 0:
		mods = append(mods, qm.Where("id = ?", filter.ID))
	case filter.Username != "":
		mods = append(mods, qm.Where("username = ?", filter.Username))
	case filter.Email != "":
		mods = append(mods, qm.Where("email = ?", filter.Email))
	case filter.UsernameOrEmail != "":
		mods = append(mods, qm.Where("(username = ? OR email = ?)", filter.UsernameOrEmail, filter.UsernameOrEmail))
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := selectOne(ctx, exe, &row, mods...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	users := []user.User{row.unboil()}
	if err := r.loadBranches(ctx, exe, users); err != nil {
		return user.User{}, errors.Wrap(err, "loading user branches")
	}
	return users[0], nil
}

func (r userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := r.getExec(exec)
	found, err := update(ctx, exe, "users", usr.ID, userColumns, userArgs(usr)...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if !found {
		return user.User{}, user.ErrNotFound
	}
	if err = r.setBranches(ctx, exe, usr.ID, usr.BranchIDs); err != nil {
		return user.User{}, errors.Wrap(err, "updating user branches")
	}
	return r.GetUser(ctx, user.GetFilter{ID: usr.ID}, exe)
}

func (r userRepository) DeleteUsersByID(ctx context.Context, ids []int64, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	exe := r.getExec(exec)

	owns, err := exists(ctx, exe, qm.From("leads"), qm.WhereIn("owner_id IN ?", int64Args(ids)...))
	if err != nil {
		return 0, errors.Wrap(err, "checking lead ownership")
	}
	if owns {
		return 0, user.ErrOwnsLeads
	}

	query, args, err := sqlx.In("DELETE FROM users WHERE id IN (?)", ids)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	res, err := exe.ExecContext(ctx, exe.Rebind(query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting users")
}
