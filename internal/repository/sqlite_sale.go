package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/shopspring/decimal"
)

type sqliteSaleRepository struct {
	db *sql.DB
}

// NewSQLiteSaleRepository stores sales in SQLite.
func NewSQLiteSaleRepository(db *sql.DB) SaleRepository {
	return &sqliteSaleRepository{db: db}
}

func (r *sqliteSaleRepository) Create(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	result, err := r.db.ExecContext(
		ctx,
		`INSERT INTO sales (date, cliente, producto, cantidad, precio) VALUES (?, ?, ?, ?, ?)`,
		formatSQLiteTime(sale.Date),
		sale.Cliente,
		sale.Producto,
		sale.Cantidad,
		sale.Precio.String(),
	)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("failed to create sale: %w", err)
	}
	if sale.ID, err = result.LastInsertId(); err != nil {
		return domain.Sale{}, fmt.Errorf("failed to read sale id: %w", err)
	}
	return sale, nil
}

func (r *sqliteSaleRepository) UpsertByProducto(ctx context.Context, sale domain.Sale) (domain.Sale, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sale{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM sales WHERE producto = ?`, sale.Producto).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, insertErr := tx.ExecContext(
			ctx,
			`INSERT INTO sales (date, cliente, producto, cantidad, precio) VALUES (?, ?, ?, ?, ?)`,
			formatSQLiteTime(sale.Date),
			sale.Cliente,
			sale.Producto,
			sale.Cantidad,
			sale.Precio.String(),
		)
		if insertErr != nil {
			return domain.Sale{}, false, fmt.Errorf("failed to insert sale: %w", insertErr)
		}
		if sale.ID, err = result.LastInsertId(); err != nil {
			return domain.Sale{}, false, fmt.Errorf("failed to read sale id: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return domain.Sale{}, false, fmt.Errorf("failed to commit sale: %w", err)
		}
		return sale, true, nil
	case err != nil:
		return domain.Sale{}, false, fmt.Errorf("failed to look up sale: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE sales
		 SET date = ?, cliente = ?, cantidad = ?, precio = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		formatSQLiteTime(sale.Date),
		sale.Cliente,
		sale.Cantidad,
		sale.Precio.String(),
		existingID,
	); err != nil {
		return domain.Sale{}, false, fmt.Errorf("failed to update sale: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Sale{}, false, fmt.Errorf("failed to commit sale: %w", err)
	}
	sale.ID = existingID
	return sale, false, nil
}

func (r *sqliteSaleRepository) List(ctx context.Context, limit int, offset int) ([]domain.Sale, error) {
	limit, offset = normalizePage(limit, offset)
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, date, cliente, producto, cantidad, precio FROM sales ORDER BY id LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	sales := []domain.Sale{}
	for rows.Next() {
		var (
			sale   domain.Sale
			date   string
			precio string
		)
		if err := rows.Scan(&sale.ID, &date, &sale.Cliente, &sale.Producto, &sale.Cantidad, &precio); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		if sale.Date, err = parseSQLiteTime(date); err != nil {
			return nil, err
		}
		if sale.Precio, err = decimal.NewFromString(precio); err != nil {
			return nil, fmt.Errorf("failed to parse precio %q: %w", precio, err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sales: %w", err)
	}
	return sales, nil
}
