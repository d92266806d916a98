package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const errDupEntry = 1062

// MySQLStore keeps sessions in the sessions table. Queries stick to "?"
// placeholders and plain columns so the same store runs on sqlite in tests.
type MySQLStore struct {
	DB *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{DB: db}
}

func (r *MySQLStore) Insert(ctx context.Context, s *Session) error {
	if err := checkIDs(s); err != nil {
		return err
	}

	rec := s.Record()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, start_time, end_time, blocked, emergency_used, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.UserID, rec.StartTime, rec.EndTime, rec.Blocked, rec.EmergencyUsed, rec.Active)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == errDupEntry {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *MySQLStore) FindOne(ctx context.Context, f Filter) (*Session, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	where, args := sqlWhere(f)

	var rec Record
	err := r.DB.QueryRowContext(ctx, `
		SELECT session_id, user_id, start_time, end_time, blocked, emergency_used, active
		FROM sessions WHERE `+where, args...,
	).Scan(&rec.SessionID, &rec.UserID, &rec.StartTime, &rec.EndTime, &rec.Blocked, &rec.EmergencyUsed, &rec.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return rec.Session()
}

func (r *MySQLStore) UpdateOne(ctx context.Context, f Filter, p Patch) (bool, error) {
	if err := f.validate(); err != nil {
		return false, err
	}
	if p.empty() {
		return false, errors.New("empty patch")
	}

	set, setArgs := sqlSet(p)
	where, whereArgs := sqlWhere(f)

	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET "+set+" WHERE "+where,
		append(setArgs, whereArgs...)...,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func sqlWhere(f Filter) (string, []any) {
	conds := []string{"session_id = ?", "user_id = ?"}
	args := []any{f.SessionID, f.UserID}
	if f.Blocked != nil {
		conds = append(conds, "blocked = ?")
		args = append(args, *f.Blocked)
	}
	if f.EmergencyUsed != nil {
		conds = append(conds, "emergency_used = ?")
		args = append(args, *f.EmergencyUsed)
	}
	if f.EndTime != nil {
		conds = append(conds, "end_time = ?")
		args = append(args, FormatTime(*f.EndTime))
	}
	return strings.Join(conds, " AND "), args
}

func sqlSet(p Patch) (string, []any) {
	var cols []string
	var args []any
	if p.EndTime != nil {
		cols = append(cols, "end_time = ?")
		args = append(args, FormatTime(*p.EndTime))
	}
	if p.Blocked != nil {
		cols = append(cols, "blocked = ?")
		args = append(args, *p.Blocked)
	}
	if p.EmergencyUsed != nil {
		cols = append(cols, "emergency_used = ?")
		args = append(args, *p.EmergencyUsed)
	}
	if p.Active != nil {
		cols = append(cols, "active = ?")
		args = append(args, *p.Active)
	}
	return strings.Join(cols, ", "), args
}
