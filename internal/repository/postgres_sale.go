package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type saleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository wires a sales repository backed by pgxpool.
func NewSaleRepository(pool *pgxpool.Pool) SaleRepository {
	return &saleRepository{pool: pool}
}

func (r *saleRepository) Create(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	if r.pool == nil {
		return domain.Sale{}, fmt.Errorf("sale repository not initialized")
	}

	err := r.pool.QueryRow(
		ctx,
		`INSERT INTO sales (date, cliente, producto, cantidad, precio)
		 VALUES ($1, $2, $3, $4, $5::numeric)
		 RETURNING id`,
		sale.Date,
		sale.Cliente,
		sale.Producto,
		sale.Cantidad,
		sale.Precio.String(),
	).Scan(&sale.ID)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("failed to create sale: %w", err)
	}
	return sale, nil
}

func (r *saleRepository) UpsertByProducto(ctx context.Context, sale domain.Sale) (domain.Sale, bool, error) {
	if r.pool == nil {
		return domain.Sale{}, false, fmt.Errorf("sale repository not initialized")
	}

	// xmax is zero only for freshly inserted tuples.
	var inserted bool
	err := r.pool.QueryRow(
		ctx,
		`INSERT INTO sales (date, cliente, producto, cantidad, precio)
		 VALUES ($1, $2, $3, $4, $5::numeric)
		 ON CONFLICT (producto) DO UPDATE
		 SET date = EXCLUDED.date,
		     cliente = EXCLUDED.cliente,
		     cantidad = EXCLUDED.cantidad,
		     precio = EXCLUDED.precio,
		     updated_at = NOW()
		 RETURNING id, (xmax = 0)`,
		sale.Date,
		sale.Cliente,
		sale.Producto,
		sale.Cantidad,
		sale.Precio.String(),
	).Scan(&sale.ID, &inserted)
	if err != nil {
		return domain.Sale{}, false, fmt.Errorf("failed to upsert sale: %w", err)
	}
	return sale, inserted, nil
}

func (r *saleRepository) List(ctx context.Context, limit int, offset int) ([]domain.Sale, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("sale repository not initialized")
	}

	limit, offset = normalizePage(limit, offset)
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, date, cliente, producto, cantidad, precio::text
		 FROM sales
		 ORDER BY id
		 LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	sales := []domain.Sale{}
	for rows.Next() {
		sale, scanErr := scanPostgresSale(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", scanErr)
		}
		sales = append(sales, sale)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate sales: %w", rowsErr)
	}
	return sales, nil
}

func scanPostgresSale(row pgx.Row) (domain.Sale, error) {
	var (
		sale   domain.Sale
		date   pgtype.Timestamptz
		precio string
	)
	if err := row.Scan(&sale.ID, &date, &sale.Cliente, &sale.Producto, &sale.Cantidad, &precio); err != nil {
		return domain.Sale{}, err
	}
	if date.Valid {
		sale.Date = date.Time.UTC()
	}
	amount, err := decimal.NewFromString(precio)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("failed to parse precio %q: %w", precio, err)
	}
	sale.Precio = amount
	return sale, nil
}
