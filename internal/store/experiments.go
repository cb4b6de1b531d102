package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}
	splitJSON, err := json.Marshal(exp.TrafficSplit)
	if err != nil {
		return fmt.Errorf("failed to marshal traffic split: %w", err)
	}
	metricsJSON, err := json.Marshal(exp.SuccessMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal success metrics: %w", err)
	}

	var paramsJSON []byte
	if len(exp.TestParameters) > 0 {
		paramsJSON, err = json.Marshal(exp.TestParameters)
		if err != nil {
			return fmt.Errorf("failed to marshal test parameters: %w", err)
		}
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, status, variants, traffic_split, success_metrics,
		                          test_parameters, confidence_level, min_sample_size, duration_days,
		                          created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, string(exp.Status), string(variantsJSON), string(splitJSON), string(metricsJSON),
		nullableString(paramsJSON), exp.ConfidenceLevel, exp.MinSampleSize, exp.DurationDays,
		now, now,
	)
	if err != nil {
		return wrapDriver("failed to insert experiment", err)
	}

	exp.CreatedAt = time.Unix(now, 0)
	exp.UpdatedAt = time.Unix(now, 0)
	return nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, variants, traffic_split, success_metrics, test_parameters,
		        confidence_level, min_sample_size, duration_days, start_date, end_date,
		        winner_variant_id, analysis, created_at, updated_at
		 FROM experiments WHERE id = ?`, id,
	)

	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapDriver("failed to get experiment", err)
	}

	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status, variants, traffic_split, success_metrics, test_parameters,
		        confidence_level, min_sample_size, duration_days, start_date, end_date,
		        winner_variant_id, analysis, created_at, updated_at
		 FROM experiments ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, wrapDriver("failed to list experiments", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, wrapDriver("failed to scan experiment", err)
		}
		experiments = append(experiments, exp)
	}

	return experiments, rows.Err()
}

// StartExperiment transitions draft -> running. The WHERE clause is
// the optimistic guard: a racing start loses and gets ErrInvalidState.
func (s *SQLiteStore) StartExperiment(ctx context.Context, id string, start, end time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET status = ?, start_date = ?, end_date = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusRunning), start.Unix(), end.Unix(), time.Now().Unix(),
		id, string(StatusDraft),
	)
	if err != nil {
		return wrapDriver("failed to start experiment", err)
	}

	return s.checkTransition(ctx, result, id)
}

// FinishExperiment transitions running -> completed|stopped, freezing
// the winner and analysis snapshot on the row.
func (s *SQLiteStore) FinishExperiment(ctx context.Context, id string, to ExperimentStatus, winnerVariantID *string, analysis json.RawMessage) error {
	if to != StatusCompleted && to != StatusStopped {
		return fmt.Errorf("%w: %s is not a terminal status", ErrInvalidState, to)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET status = ?, winner_variant_id = ?, analysis = ?, end_date = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), nullablePtr(winnerVariantID), nullableString(analysis), time.Now().Unix(), time.Now().Unix(),
		id, string(StatusRunning),
	)
	if err != nil {
		return wrapDriver("failed to finish experiment", err)
	}

	return s.checkTransition(ctx, result, id)
}

// checkTransition maps a zero-row optimistic update to the right
// taxonomy error: unknown id gets ErrNotFound, a state mismatch gets
// ErrInvalidState.
func (s *SQLiteStore) checkTransition(ctx context.Context, result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapDriver("failed to get rows affected", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM experiments WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return wrapDriver("failed to check experiment status", err)
	}
	return fmt.Errorf("%w: experiment is %s", ErrInvalidState, status)
}

func (s *SQLiteStore) RecordSample(ctx context.Context, sample *MetricSample) error {
	conversion := 0
	if sample.ConversionFlag {
		conversion = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (id, experiment_id, variant_id, session_id, quality_score,
		                      engagement_score, conversion, processing_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.ID, sample.ExperimentID, sample.VariantID, sample.SessionID,
		sample.QualityScore, sample.EngagementScore, conversion, sample.ProcessingTimeMs,
		sample.CreatedAt.Unix(),
	)
	if err != nil {
		return wrapDriver("failed to record sample", err)
	}

	return nil
}

func (s *SQLiteStore) VariantAggregates(ctx context.Context, experimentID string) ([]VariantAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			variant_id,
			COUNT(*) as samples,
			COALESCE(SUM(quality_score), 0),
			COALESCE(SUM(quality_score * quality_score), 0),
			COALESCE(SUM(engagement_score), 0),
			COALESCE(SUM(conversion), 0),
			COALESCE(SUM(processing_ms), 0)
		FROM samples
		WHERE experiment_id = ?
		GROUP BY variant_id
		ORDER BY variant_id
	`, experimentID)
	if err != nil {
		return nil, wrapDriver("failed to aggregate samples", err)
	}
	defer rows.Close()

	var aggregates []VariantAggregate
	for rows.Next() {
		var a VariantAggregate
		if err := rows.Scan(&a.VariantID, &a.SampleCount, &a.QualitySum, &a.QualitySumSq,
			&a.EngagementSum, &a.Conversions, &a.ProcessingSumMs); err != nil {
			return nil, wrapDriver("failed to scan aggregate", err)
		}
		aggregates = append(aggregates, a)
	}

	return aggregates, rows.Err()
}

func (s *SQLiteStore) GetSamples(ctx context.Context, experimentID string) ([]*MetricSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment_id, variant_id, session_id, quality_score, engagement_score,
		        conversion, processing_ms, created_at
		 FROM samples WHERE experiment_id = ? ORDER BY created_at DESC`,
		experimentID,
	)
	if err != nil {
		return nil, wrapDriver("failed to get samples", err)
	}
	defer rows.Close()

	var samples []*MetricSample
	for rows.Next() {
		var m MetricSample
		var sessionID sql.NullString
		var conversion int
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ExperimentID, &m.VariantID, &sessionID,
			&m.QualityScore, &m.EngagementScore, &conversion, &m.ProcessingTimeMs, &createdAt); err != nil {
			return nil, wrapDriver("failed to scan sample", err)
		}
		m.SessionID = sessionID.String
		m.ConversionFlag = conversion != 0
		m.CreatedAt = time.Unix(createdAt, 0)
		samples = append(samples, &m)
	}

	return samples, rows.Err()
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var variantsJSON, splitJSON, metricsJSON string
	var paramsJSON, winnerID, analysisJSON sql.NullString
	var startDate, endDate sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&exp.ID, &exp.Name, &exp.Status, &variantsJSON, &splitJSON, &metricsJSON,
		&paramsJSON, &exp.ConfidenceLevel, &exp.MinSampleSize, &exp.DurationDays,
		&startDate, &endDate, &winnerID, &analysisJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(variantsJSON), &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if err := json.Unmarshal([]byte(splitJSON), &exp.TrafficSplit); err != nil {
		return nil, fmt.Errorf("failed to unmarshal traffic split: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &exp.SuccessMetrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal success metrics: %w", err)
	}
	if paramsJSON.Valid && paramsJSON.String != "" {
		if err := json.Unmarshal([]byte(paramsJSON.String), &exp.TestParameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal test parameters: %w", err)
		}
	}

	if startDate.Valid {
		t := time.Unix(startDate.Int64, 0)
		exp.StartDate = &t
	}
	if endDate.Valid {
		t := time.Unix(endDate.Int64, 0)
		exp.EndDate = &t
	}
	if winnerID.Valid {
		w := winnerID.String
		exp.WinnerVariantID = &w
	}
	if analysisJSON.Valid && analysisJSON.String != "" {
		exp.Analysis = json.RawMessage(analysisJSON.String)
	}

	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}
