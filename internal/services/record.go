package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dimitrije/starter-api/internal/database"
	"github.com/dimitrije/starter-api/internal/models"
	"github.com/jackc/pgx/v5"
)

const recordColumns = `subject_id, fields, price_id, subscription_status, created_at, updated_at`

// Billing state lives in its own columns and is only written by SetBilling.
var reservedFields = []string{"price_id", "priceId", "subscription_status", "subscriptionStatus"}

type RecordService struct {
	db *database.DB
}

func NewRecordService(db *database.DB) *RecordService {
	return &RecordService{db: db}
}

func scanRecord(row pgx.Row) (*models.UserRecord, error) {
	var (
		r   models.UserRecord
		raw []byte
	)
	err := row.Scan(&r.SubjectID, &raw, &r.PriceID, &r.SubscriptionStatus, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.Fields = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode record fields: %w", err)
		}
	}
	return &r, nil
}

func encodeFields(fields map[string]any) (string, error) {
	for _, k := range reservedFields {
		if _, ok := fields[k]; ok {
			return "", ErrReservedField
		}
	}
	if fields == nil {
		return "{}", nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode record fields: %w", err)
	}
	return string(b), nil
}

func (s *RecordService) Get(ctx context.Context, subjectID string) (*models.UserRecord, error) {
	return scanRecord(s.db.Pool.QueryRow(ctx, `
		SELECT `+recordColumns+` FROM user_records WHERE subject_id = $1
	`, subjectID))
}

// Create inserts the record if it does not exist yet. An existing record
// is returned untouched and created is false.
func (s *RecordService) Create(ctx context.Context, subjectID string, fields map[string]any) (record *models.UserRecord, created bool, err error) {
	encoded, err := encodeFields(fields)
	if err != nil {
		return nil, false, err
	}

	record, err = scanRecord(s.db.Pool.QueryRow(ctx, `
		INSERT INTO user_records (subject_id, fields)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (subject_id) DO NOTHING
		RETURNING `+recordColumns,
		subjectID, encoded))
	if err == nil {
		return record, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("failed to create record: %w", err)
	}

	record, err = s.Get(ctx, subjectID)
	if err != nil {
		return nil, false, err
	}
	return record, false, nil
}

// Update merges fields into the stored document; keys not present are kept.
func (s *RecordService) Update(ctx context.Context, subjectID string, fields map[string]any) (*models.UserRecord, error) {
	encoded, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}

	return scanRecord(s.db.Pool.QueryRow(ctx, `
		UPDATE user_records SET fields = fields || $2::jsonb, updated_at = NOW()
		WHERE subject_id = $1
		RETURNING `+recordColumns,
		subjectID, encoded))
}

// SetBilling records the subscription for a subject. An empty priceID
// clears the plan.
func (s *RecordService) SetBilling(ctx context.Context, subjectID, priceID, status string) (*models.UserRecord, error) {
	if status != "" && !models.ValidSubscriptionStatus(status) {
		return nil, ErrInvalidStatus
	}

	return scanRecord(s.db.Pool.QueryRow(ctx, `
		UPDATE user_records SET price_id = $2, subscription_status = $3, updated_at = NOW()
		WHERE subject_id = $1
		RETURNING `+recordColumns,
		subjectID, nullableString(priceID), nullableString(status)))
}
