package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/subscription"
	"github.com/artpar/billgate/ports"
)

// SubscriptionStore implements ports.SubscriptionStore using SQLite.
type SubscriptionStore struct {
	db *DB
}

// NewSubscriptionStore creates a new SQLite subscription store.
func NewSubscriptionStore(db *DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// Create stores a new subscription.
func (s *SubscriptionStore) Create(ctx context.Context, sub subscription.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, customer_id, plan_id, state, start_date,
			trial_end_override, cancel_date, ended_at, reference,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.ID, sub.CustomerID, sub.PlanID, string(sub.State), sub.StartDate,
		nullTime(sub.TrialEndOverride), nullTime(sub.CancelDate),
		nullTime(sub.EndedAt), sub.Reference, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Get retrieves a subscription by ID.
func (s *SubscriptionStore) Get(ctx context.Context, id string) (subscription.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, plan_id, state, start_date,
		       trial_end_override, cancel_date, ended_at, reference,
		       created_at, updated_at
		FROM subscriptions WHERE id = ?
	`, id)
	return scanSubscription(row)
}

// Update modifies a subscription.
func (s *SubscriptionStore) Update(ctx context.Context, sub subscription.Subscription) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET state = ?, start_date = ?, trial_end_override = ?,
		    cancel_date = ?, ended_at = ?, reference = ?, updated_at = ?
		WHERE id = ?
	`,
		string(sub.State), sub.StartDate, nullTime(sub.TrialEndOverride),
		nullTime(sub.CancelDate), nullTime(sub.EndedAt), sub.Reference,
		sub.UpdatedAt, sub.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBillable returns active and canceled-but-not-ended subscriptions.
func (s *SubscriptionStore) ListBillable(ctx context.Context) ([]subscription.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, plan_id, state, start_date,
		       trial_end_override, cancel_date, ended_at, reference,
		       created_at, updated_at
		FROM subscriptions
		WHERE state IN ('active', 'canceled')
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanSubscription(row rowScanner) (subscription.Subscription, error) {
	var sub subscription.Subscription
	var state string
	var trialEnd, cancelDate, endedAt sql.NullTime

	err := row.Scan(
		&sub.ID, &sub.CustomerID, &sub.PlanID, &state, &sub.StartDate,
		&trialEnd, &cancelDate, &endedAt, &sub.Reference,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return subscription.Subscription{}, ErrNotFound
	}
	if err != nil {
		return subscription.Subscription{}, err
	}
	sub.State = subscription.State(state)
	sub.StartDate = sub.StartDate.UTC()
	sub.TrialEndOverride = utcTimePtr(trialEnd)
	sub.CancelDate = utcTimePtr(cancelDate)
	sub.EndedAt = utcTimePtr(endedAt)
	return sub, nil
}

func utcTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

// Ensure interface compliance.
var _ ports.SubscriptionStore = (*SubscriptionStore)(nil)

// BillingLogStore implements ports.BillingLogStore using SQLite.
type BillingLogStore struct {
	db *DB
}

// NewBillingLogStore creates a new SQLite billing log store.
func NewBillingLogStore(db *DB) *BillingLogStore {
	return &BillingLogStore{db: db}
}

// Latest returns the newest ledger entry for a subscription.
func (s *BillingLogStore) Latest(ctx context.Context, subscriptionID string) (subscription.BillingLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subscription_id, billing_date, plan_billed_up_to,
		       metered_features_billed_up_to, total, created_at
		FROM billing_logs
		WHERE subscription_id = ?
		ORDER BY plan_billed_up_to DESC
		LIMIT 1
	`, subscriptionID)
	return scanBillingLog(row)
}

// Append adds a ledger entry. The insert is conditional on no existing
// entry carrying a plan watermark at or past the new one, evaluated in a
// single statement so concurrent runs cannot both claim the window.
func (s *BillingLogStore) Append(ctx context.Context, log subscription.BillingLog) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO billing_logs (
			id, subscription_id, billing_date, plan_billed_up_to,
			metered_features_billed_up_to, total, created_at
		)
		SELECT ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM billing_logs
			WHERE subscription_id = ? AND plan_billed_up_to >= ?
		)
	`,
		log.ID, log.SubscriptionID, log.BillingDate, log.PlanBilledUpTo,
		log.MeteredFeaturesBilledUpTo, decString(log.Total), log.CreatedAt,
		log.SubscriptionID, log.PlanBilledUpTo,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrStale
	}
	return nil
}

// List returns all entries for a subscription, newest first.
func (s *BillingLogStore) List(ctx context.Context, subscriptionID string) ([]subscription.BillingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subscription_id, billing_date, plan_billed_up_to,
		       metered_features_billed_up_to, total, created_at
		FROM billing_logs
		WHERE subscription_id = ?
		ORDER BY plan_billed_up_to DESC
	`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []subscription.BillingLog
	for rows.Next() {
		log, err := scanBillingLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanBillingLog(row rowScanner) (subscription.BillingLog, error) {
	var log subscription.BillingLog
	var total string

	err := row.Scan(
		&log.ID, &log.SubscriptionID, &log.BillingDate, &log.PlanBilledUpTo,
		&log.MeteredFeaturesBilledUpTo, &total, &log.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return subscription.BillingLog{}, ErrNotFound
	}
	if err != nil {
		return subscription.BillingLog{}, err
	}
	log.BillingDate = log.BillingDate.UTC()
	log.PlanBilledUpTo = log.PlanBilledUpTo.UTC()
	log.MeteredFeaturesBilledUpTo = log.MeteredFeaturesBilledUpTo.UTC()
	if log.Total, err = scanDecimal(total); err != nil {
		return subscription.BillingLog{}, err
	}
	return log, nil
}

// Ensure interface compliance.
var _ ports.BillingLogStore = (*BillingLogStore)(nil)

// UnitsLogStore implements ports.UnitsLogStore using SQLite.
type UnitsLogStore struct {
	db *DB
}

// NewUnitsLogStore creates a new SQLite units log store.
func NewUnitsLogStore(db *DB) *UnitsLogStore {
	return &UnitsLogStore{db: db}
}

// Upsert creates or updates the log for the exact window. Relative updates
// add to stored units; absolute updates replace them. A window overlapping
// a different existing window is rejected.
func (s *UnitsLogStore) Upsert(ctx context.Context, log subscription.MeteredFeatureUnitsLog, relative bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id string
	var stored string
	err = tx.QueryRowContext(ctx, `
		SELECT id, consumed_units FROM units_logs
		WHERE metered_feature_id = ? AND subscription_id = ?
		  AND start_date = ? AND end_date = ?
	`, log.MeteredFeatureID, log.SubscriptionID, log.StartDate, log.EndDate,
	).Scan(&id, &stored)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No exact match; reject any overlapping window before inserting.
		var overlaps int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(1) FROM units_logs
			WHERE metered_feature_id = ? AND subscription_id = ?
			  AND start_date <= ? AND end_date >= ?
		`, log.MeteredFeatureID, log.SubscriptionID, log.EndDate, log.StartDate,
		).Scan(&overlaps)
		if err != nil {
			return err
		}
		if overlaps > 0 {
			return ErrDuplicate
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO units_logs (
				id, metered_feature_id, subscription_id,
				start_date, end_date, consumed_units, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			log.ID, log.MeteredFeatureID, log.SubscriptionID,
			log.StartDate, log.EndDate, decString(log.ConsumedUnits),
			log.CreatedAt, log.UpdatedAt,
		)
		if err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		units := log.ConsumedUnits
		if relative {
			prev, err := scanDecimal(stored)
			if err != nil {
				return err
			}
			units = prev.Add(log.ConsumedUnits)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE units_logs SET consumed_units = ?, updated_at = ? WHERE id = ?
		`, decString(units), log.UpdatedAt, id)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Consumed sums units consumed for a feature within [start, end].
func (s *UnitsLogStore) Consumed(ctx context.Context, featureID, subscriptionID string, start, end time.Time) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT consumed_units FROM units_logs
		WHERE metered_feature_id = ? AND subscription_id = ?
		  AND start_date >= ? AND end_date <= ?
	`, featureID, subscriptionID, start, end)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var units string
		if err := rows.Scan(&units); err != nil {
			return decimal.Zero, err
		}
		u, err := scanDecimal(units)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(u)
	}
	return total, rows.Err()
}

// ListBySubscription returns all logs for a subscription.
func (s *UnitsLogStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]subscription.MeteredFeatureUnitsLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, metered_feature_id, subscription_id,
		       start_date, end_date, consumed_units, created_at, updated_at
		FROM units_logs
		WHERE subscription_id = ?
		ORDER BY start_date
	`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []subscription.MeteredFeatureUnitsLog
	for rows.Next() {
		var log subscription.MeteredFeatureUnitsLog
		var units string
		err := rows.Scan(
			&log.ID, &log.MeteredFeatureID, &log.SubscriptionID,
			&log.StartDate, &log.EndDate, &units, &log.CreatedAt, &log.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		log.StartDate = log.StartDate.UTC()
		log.EndDate = log.EndDate.UTC()
		if log.ConsumedUnits, err = scanDecimal(units); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// Ensure interface compliance.
var _ ports.UnitsLogStore = (*UnitsLogStore)(nil)
