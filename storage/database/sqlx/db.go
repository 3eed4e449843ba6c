// Package sqlxrepos implements the repositories on PostgreSQL with jmoiron/sqlx.
// Queries are written with "?" placeholders and rebound to the driver's bindvars.
package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

type repository struct {
	exec core.DBExecutor
}

func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to `notFound`
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// isViolation reports whether err is a pq error of `code`, optionally on `constraint`.
func isViolation(err error, code string, constraint ...string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok || string(pqErr.Code) != code {
		return false
	}
	return len(constraint) == 0 || pqErr.Constraint == constraint[0]
}

// where accumulates AND-ed conditions.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, "("+cond+")")
	w.args = append(w.args, args...)
}

// search matches `term` case-insensitively against any of `columns`.
func (w *where) search(term string, columns ...string) {
	if term == "" {
		return
	}
	val := "%" + term + "%"
	conds := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		conds[i] = col + " ILIKE ?"
		args[i] = val
	}
	w.add(strings.Join(conds, " OR "), args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// missing returns the ids of `ids` absent from `found`.
func missing(ids, found []string) []string {
	set := make(map[string]bool, len(found))
	for _, id := range found {
		set[id] = true
	}
	var out []string
	for _, id := range ids {
		if !set[id] {
			out = append(out, id)
		}
	}
	return out
}

// excludedIDs appends to `w` a condition excluding the ids.
func excludedIDs(w *where, column string, ids []string) {
	if len(ids) > 0 {
		w.add(column+" <> ALL(?)", pq.Array(ids))
	}
}

// expectRows returns `notFound` when the statement affected no rows.
func expectRows(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// memberLookup selects a role record of a school; see member.Lookup.
func memberLookup(schoolID string, lookup member.Lookup) (where, bool) {
	w := where{}
	w.add("school_id = ?", schoolID)
	switch {
	case lookup.ID != "":
		if !isUUID(lookup.ID) {
			return w, false
		}
		w.add("id = ?", lookup.ID)
	case lookup.UserID != "":
		w.add("user_id = ?", lookup.UserID)
	case lookup.Email != "":
		w.add("email = ?", lookup.Email)
	default:
		return w, false
	}
	return w, true
}

// isUUID tells whether `id` may be compared with a UUID column.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// areUUIDs tells whether every id may be compared with a UUID column.
func areUUIDs(ids []string) bool {
	for _, id := range ids {
		if !isUUID(id) {
			return false
		}
	}
	return true
}

// qualify prefixes every column of a comma-separated list with `alias`.
func qualify(alias, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
