package storage

import (
	"context"

	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/jackc/pgx/v5"
)

const diagnosisColumns = `id, user_id, image_ref, crop_type, disease, confidence, treatment, prevention, model_version, created_at`

func scanDiagnosis(row pgx.Row) (model.DiagnosisResult, error) {
	var d model.DiagnosisResult
	err := row.Scan(&d.ID, &d.UserID, &d.ImageRef, &d.CropType, &d.Disease, &d.Confidence,
		&d.Treatment, &d.Prevention, &d.ModelVersion, &d.CreatedAt)
	return d, err
}

// CreateDiagnosis consumes charge and inserts d in one transaction.
func (s *Store) CreateDiagnosis(ctx context.Context, d model.DiagnosisResult, charge entitlements.UsageCharge) (model.DiagnosisResult, error) {
	var out model.DiagnosisResult
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := consumeUsage(ctx, tx, charge); err != nil {
			return err
		}
		var err error
		out, err = scanDiagnosis(tx.QueryRow(ctx, `
			INSERT INTO diagnosis_results (id, user_id, image_ref, crop_type, disease, confidence, treatment, prevention, model_version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+diagnosisColumns,
			d.ID, d.UserID, d.ImageRef, d.CropType, d.Disease, d.Confidence, d.Treatment, d.Prevention, d.ModelVersion))
		return err
	})
	return out, err
}

func (s *Store) GetDiagnosis(ctx context.Context, id string) (model.DiagnosisResult, error) {
	if err := checkID(id); err != nil {
		return model.DiagnosisResult{}, err
	}
	d, err := scanDiagnosis(s.pool.QueryRow(ctx, `SELECT `+diagnosisColumns+` FROM diagnosis_results WHERE id = $1`, id))
	if err != nil {
		return model.DiagnosisResult{}, notFound(err)
	}
	return d, nil
}

func (s *Store) ListDiagnoses(ctx context.Context, userID string, limit int) ([]model.DiagnosisResult, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+diagnosisColumns+`
		FROM diagnosis_results
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DiagnosisResult
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
