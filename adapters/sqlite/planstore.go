package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/billgate/domain/calendar"
	"github.com/artpar/billgate/domain/plan"
	"github.com/artpar/billgate/ports"
)

// PlanStore implements ports.PlanStore using SQLite.
type PlanStore struct {
	db *DB
}

// NewPlanStore creates a new SQLite plan store.
func NewPlanStore(db *DB) *PlanStore {
	return &PlanStore{db: db}
}

// Create stores a new plan with its metered features in one transaction.
func (s *PlanStore) Create(ctx context.Context, p plan.Plan, features []plan.MeteredFeature) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plans (
			id, provider_id, name, interval, interval_count,
			amount, currency, trial_period_days, generate_after_ns,
			product_code, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.ProviderID, p.Name, string(p.Interval), p.IntervalCount,
		decString(p.Amount), p.Currency, p.TrialPeriodDays, int64(p.GenerateAfter),
		p.ProductCode, p.Enabled, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return err
	}

	for _, f := range features {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO metered_features (
				id, plan_id, name, unit, price_per_unit,
				included_units, included_units_during_trial,
				product_code, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			f.ID, p.ID, f.Name, f.Unit, decString(f.PricePerUnit),
			decString(f.IncludedUnits), decString(f.IncludedUnitsDuringTrial),
			f.ProductCode, f.CreatedAt, f.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert feature %s: %w", f.ID, err)
		}
	}

	return tx.Commit()
}

// Get retrieves a plan by ID.
func (s *PlanStore) Get(ctx context.Context, id string) (plan.Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider_id, name, interval, interval_count,
		       amount, currency, trial_period_days, generate_after_ns,
		       product_code, enabled, created_at, updated_at
		FROM plans WHERE id = ?
	`, id)
	return scanPlan(row)
}

// List returns all enabled plans.
func (s *PlanStore) List(ctx context.Context) ([]plan.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_id, name, interval, interval_count,
		       amount, currency, trial_period_days, generate_after_ns,
		       product_code, enabled, created_at, updated_at
		FROM plans WHERE enabled = 1 ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// Features returns the metered features of a plan.
func (s *PlanStore) Features(ctx context.Context, planID string) ([]plan.MeteredFeature, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_id, name, unit, price_per_unit,
		       included_units, included_units_during_trial,
		       product_code, created_at, updated_at
		FROM metered_features WHERE plan_id = ? ORDER BY id
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var features []plan.MeteredFeature
	for rows.Next() {
		var f plan.MeteredFeature
		var price, included, trial string
		err := rows.Scan(
			&f.ID, &f.PlanID, &f.Name, &f.Unit, &price,
			&included, &trial, &f.ProductCode, &f.CreatedAt, &f.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if f.PricePerUnit, err = scanDecimal(price); err != nil {
			return nil, err
		}
		if f.IncludedUnits, err = scanDecimal(included); err != nil {
			return nil, err
		}
		if f.IncludedUnitsDuringTrial, err = scanDecimal(trial); err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

func scanPlan(row rowScanner) (plan.Plan, error) {
	var p plan.Plan
	var interval, amount string
	var generateAfter int64

	err := row.Scan(
		&p.ID, &p.ProviderID, &p.Name, &interval, &p.IntervalCount,
		&amount, &p.Currency, &p.TrialPeriodDays, &generateAfter,
		&p.ProductCode, &p.Enabled, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Plan{}, ErrNotFound
	}
	if err != nil {
		return plan.Plan{}, err
	}
	p.Interval = calendar.Unit(interval)
	p.GenerateAfter = time.Duration(generateAfter)
	if p.Amount, err = scanDecimal(amount); err != nil {
		return plan.Plan{}, err
	}
	return p, nil
}

// Ensure interface compliance.
var _ ports.PlanStore = (*PlanStore)(nil)
