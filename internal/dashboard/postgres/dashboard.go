package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/clinic-management/internal/dashboard"
	"github.com/jmoiron/sqlx"
)

type DashboardRepository struct {
	db *sqlx.DB
}

func NewDashboardRepository(db *sqlx.DB) dashboard.RepositoryAPI {
	return &DashboardRepository{db: db}
}

func (r *DashboardRepository) CountPatients(ctx context.Context) (int64, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM patients WHERE deleted_at IS NULL")
}

func (r *DashboardRepository) CountUsers(ctx context.Context) (int64, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM users WHERE deleted_at IS NULL")
}

func (r *DashboardRepository) CountPatientsCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return r.count(ctx,
		"SELECT COUNT(*) FROM patients WHERE deleted_at IS NULL AND created_at >= ? AND created_at < ?",
		from, to)
}

func (r *DashboardRepository) RecentPatients(ctx context.Context, limit int) ([]dashboard.PatientRow, error) {
	query := r.db.Rebind(`
		SELECT p.id, p.first_name, p.last_name, p.email, p.created_at,
		       u.id AS creator_id, u.first_name AS creator_first_name, u.last_name AS creator_last_name
		FROM patients p
		LEFT JOIN users u ON u.id = p.created_by_id
		WHERE p.deleted_at IS NULL
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ?`)

	var rows []dashboard.PatientRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("recent patients: %w", err)
	}
	return rows, nil
}

func (r *DashboardRepository) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
