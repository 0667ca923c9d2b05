package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"expense-tracker/internal/models"
)

// expenseArgs converts input to column values. Absent fields, an empty
// category and a zero date are written as NULL.
func expenseArgs(in models.ExpenseInput) (title, amount, category, incurredAt any) {
	if in.Title != nil {
		title = *in.Title
	}
	if in.Amount != nil {
		amount = in.Amount.Cents()
	}
	if in.Category != nil && *in.Category != "" {
		category = *in.Category
	}
	if in.IncurredAt != nil && !in.IncurredAt.IsZero() {
		incurredAt = in.IncurredAt.String()
	}
	return title, amount, category, incurredAt
}

// ListExpenses returns every expense owned by userID, latest incurred-on date
// first. Undated expenses come last; ties fall back to newest id first.
func (db *DB) ListExpenses(ctx context.Context, userID int64) ([]models.Expense, error) {
	query := db.dialect.rebind(`
		SELECT id, user_id, title, amount_cents, category, ` + db.dialect.incurredAt + `, created_at
		FROM expenses
		WHERE user_id = ?
		ORDER BY incurred_at DESC NULLS LAST, id DESC`)

	expenses := []models.Expense{}
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e          models.Expense
				cents      int64
				category   sql.NullString
				incurredAt sql.NullString
			)
			if err := rows.Scan(&e.ID, &e.UserID, &e.Title, &cents, &category, &incurredAt, &e.CreatedAt); err != nil {
				return err
			}
			e.Amount = models.Amount(cents)
			if category.Valid {
				e.Category = &category.String
			}
			if incurredAt.Valid {
				d, err := models.ParseDate(incurredAt.String)
				if err != nil {
					return fmt.Errorf("expense %d: %w", e.ID, err)
				}
				e.IncurredAt = &d
			}
			expenses = append(expenses, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// CreateExpense inserts a new expense for userID and returns its id.
func (db *DB) CreateExpense(ctx context.Context, userID int64, in models.ExpenseInput) (int64, error) {
	title, amount, category, incurredAt := expenseArgs(in)

	var id int64
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, db.dialect.rebind(
			"INSERT INTO expenses (user_id, title, amount_cents, category, incurred_at) VALUES (?, ?, ?, ?, ?) RETURNING id"),
			userID, title, amount, category, incurredAt,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", classify(err))
	}
	return id, nil
}

// UpdateExpense overwrites every mutable field of expense id owned by userID
// and returns the number of rows affected. A missing or foreign id affects
// zero rows and is not an error.
func (db *DB) UpdateExpense(ctx context.Context, userID, id int64, in models.ExpenseInput) (int64, error) {
	title, amount, category, incurredAt := expenseArgs(in)
	return db.exec(ctx, "update expense",
		"UPDATE expenses SET title = ?, amount_cents = ?, category = ?, incurred_at = ? WHERE id = ? AND user_id = ?",
		title, amount, category, incurredAt, id, userID,
	)
}

// DeleteExpense removes expense id owned by userID and returns the number of
// rows affected.
func (db *DB) DeleteExpense(ctx context.Context, userID, id int64) (int64, error) {
	return db.exec(ctx, "delete expense", "DELETE FROM expenses WHERE id = ? AND user_id = ?", id, userID)
}

func (db *DB) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	var n int64
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, db.dialect.rebind(query), args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, classify(err))
	}
	return n, nil
}

// CountExpenses returns how many expenses reference userID.
func (db *DB) CountExpenses(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, db.dialect.rebind("SELECT COUNT(*) FROM expenses WHERE user_id = ?"), userID).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count expenses: %w", err)
	}
	return count, nil
}

// GetCategoryTotalsByMonth sums userID's expenses incurred in the given month
// per category, largest total first. Uncategorized expenses are grouped under
// the empty category.
func (db *DB) GetCategoryTotalsByMonth(ctx context.Context, userID int64, year, month int) ([]models.CategoryTotal, error) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	query := db.dialect.rebind(`
		SELECT COALESCE(category, ''), CAST(SUM(amount_cents) AS BIGINT), COUNT(*)
		FROM expenses
		WHERE user_id = ? AND incurred_at >= ? AND incurred_at < ?
		GROUP BY COALESCE(category, '')
		ORDER BY 2 DESC, 1`)

	totals := []models.CategoryTotal{}
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, userID, start.Format(models.DateLayout), end.Format(models.DateLayout))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				ct    models.CategoryTotal
				cents int64
			)
			if err := rows.Scan(&ct.Category, &cents, &ct.Count); err != nil {
				return err
			}
			ct.Total = models.Amount(cents)
			totals = append(totals, ct)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("get category totals: %w", err)
	}
	return totals, nil
}
