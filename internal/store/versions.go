package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

func (s *SQLiteStore) CreateVersion(ctx context.Context, in CreateVersionInput) (*Version, error) {
	if in.ContentID == "" || in.BranchName == "" {
		return nil, fmt.Errorf("%w: content id and branch name are required", ErrInvalidConfig)
	}

	hash, err := HashArtifact(in.Artifact)
	if err != nil {
		return nil, err
	}

	if in.ParentVersionID != nil {
		if err := s.versionExists(ctx, *in.ParentVersionID); err != nil {
			return nil, err
		}
	}

	v := &Version{
		ID:              uuid.NewString(),
		ContentID:       in.ContentID,
		BranchName:      in.BranchName,
		ParentVersionID: in.ParentVersionID,
		ContentHash:     hash,
		Artifact:        in.Artifact,
		QualityMetrics:  in.QualityMetrics,
		ExperimentID:    in.ExperimentID,
		VariantID:       in.VariantID,
		Status:          VersionActive,
		CreatedAt:       time.Now(),
	}

	if err := s.insertVersion(ctx, v); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, v.ContentID, v.ID, ActionCreate,
		fmt.Sprintf("created version %d on branch %s", v.VersionNumber, v.BranchName))

	return v, nil
}

// insertVersion persists v and assigns the next version number for
// its lineage. The number is computed by a subquery inside the single
// INSERT statement, so concurrent creators on the same lineage
// serialize at the database and can never collide. The maximum is
// taken over all rows of the lineage, archived included, so numbers
// are never reused.
func (s *SQLiteStore) insertVersion(ctx context.Context, v *Version) error {
	metricsJSON, err := marshalMetrics(v.QualityMetrics)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO versions (id, content_id, branch_name, version_number, parent_version_id,
		                       content_hash, artifact, quality_metrics, experiment_id, variant_id,
		                       status, created_at)
		 VALUES (?, ?, ?,
		         (SELECT COALESCE(MAX(version_number), 0) + 1 FROM versions WHERE content_id = ? AND branch_name = ?),
		         ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ContentID, v.BranchName,
		v.ContentID, v.BranchName,
		nullablePtr(v.ParentVersionID), v.ContentHash, string(v.Artifact),
		nullableString(metricsJSON), v.ExperimentID, v.VariantID,
		string(v.Status), v.CreatedAt.Unix(),
	)
	if err != nil {
		return wrapDriver("failed to insert version", err)
	}

	// Read back the assigned number
	err = s.db.QueryRowContext(ctx,
		`SELECT version_number FROM versions WHERE id = ?`, v.ID,
	).Scan(&v.VersionNumber)
	if err != nil {
		return wrapDriver("failed to read back version number", err)
	}

	return nil
}

func (s *SQLiteStore) GetVersion(ctx context.Context, versionID string) (*Version, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content_id, branch_name, version_number, parent_version_id, content_hash,
		        artifact, quality_metrics, experiment_id, variant_id, status, created_at
		 FROM versions WHERE id = ?`, versionID,
	)

	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapDriver("failed to get version", err)
	}

	return v, nil
}

func (s *SQLiteStore) ListVersions(ctx context.Context, contentID string, opts ListVersionsOptions) ([]*Version, bool, error) {
	query := `SELECT id, content_id, branch_name, version_number, parent_version_id, content_hash,
	                 artifact, quality_metrics, experiment_id, variant_id, status, created_at
	          FROM versions WHERE content_id = ?`
	args := []any{contentID}

	if opts.BranchName != "" {
		query += ` AND branch_name = ?`
		args = append(args, opts.BranchName)
	}
	if !opts.IncludeArchived {
		query += ` AND status = 'active'`
	}

	query += ` ORDER BY version_number DESC`

	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, wrapDriver("failed to list versions", err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, false, wrapDriver("failed to scan version", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, false, wrapDriver("failed to list versions", err)
	}

	hasMore := opts.Limit > 0 && len(versions) == opts.Limit
	return versions, hasMore, nil
}

func (s *SQLiteStore) RestoreVersion(ctx context.Context, versionID, branchName string) (*Version, error) {
	source, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	if branchName == "" {
		branchName = source.BranchName
	}

	restored := &Version{
		ID:              uuid.NewString(),
		ContentID:       source.ContentID,
		BranchName:      branchName,
		ParentVersionID: &source.ID,
		ContentHash:     source.ContentHash,
		Artifact:        source.Artifact,
		QualityMetrics:  source.QualityMetrics,
		ExperimentID:    source.ExperimentID,
		VariantID:       source.VariantID,
		Status:          VersionActive,
		CreatedAt:       time.Now(),
	}

	if err := s.insertVersion(ctx, restored); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, restored.ContentID, restored.ID, ActionRestore,
		fmt.Sprintf("restored version %s as version %d on branch %s", source.ID, restored.VersionNumber, branchName))

	return restored, nil
}

func (s *SQLiteStore) Branch(ctx context.Context, versionID, newBranchName string) (*Version, error) {
	if newBranchName == "" {
		return nil, fmt.Errorf("%w: branch name is required", ErrInvalidConfig)
	}

	source, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	metricsJSON, err := marshalMetrics(source.QualityMetrics)
	if err != nil {
		return nil, err
	}

	branched := &Version{
		ID:              uuid.NewString(),
		ContentID:       source.ContentID,
		BranchName:      newBranchName,
		VersionNumber:   1,
		ParentVersionID: &source.ID,
		ContentHash:     source.ContentHash,
		Artifact:        source.Artifact,
		QualityMetrics:  source.QualityMetrics,
		Status:          VersionActive,
		CreatedAt:       time.Now(),
	}

	// The NOT EXISTS guard makes creation and the duplicate check a
	// single atomic statement.
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO versions (id, content_id, branch_name, version_number, parent_version_id,
		                       content_hash, artifact, quality_metrics, experiment_id, variant_id,
		                       status, created_at)
		 SELECT ?, ?, ?, 1, ?, ?, ?, ?, '', '', ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM versions WHERE content_id = ? AND branch_name = ?)`,
		branched.ID, branched.ContentID, branched.BranchName, nullablePtr(branched.ParentVersionID),
		branched.ContentHash, string(branched.Artifact), nullableString(metricsJSON),
		string(VersionActive), branched.CreatedAt.Unix(),
		branched.ContentID, branched.BranchName,
	)
	if err != nil {
		return nil, wrapDriver("failed to create branch", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, wrapDriver("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: branch %s already has versions for content %s",
			ErrAlreadyExists, newBranchName, source.ContentID)
	}

	s.appendHistory(ctx, branched.ContentID, branched.ID, ActionBranch,
		fmt.Sprintf("branched %s from version %s", newBranchName, source.ID))

	return branched, nil
}

func (s *SQLiteStore) ArchiveOlderThan(ctx context.Context, contentID, branchName string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM versions
		 WHERE content_id = ? AND branch_name = ? AND status = 'active'
		   AND id NOT IN (
		       SELECT id FROM versions
		       WHERE content_id = ? AND branch_name = ? AND status = 'active'
		       ORDER BY version_number DESC LIMIT ?
		   )`,
		contentID, branchName, contentID, branchName, keep,
	)
	if err != nil {
		return 0, wrapDriver("failed to select versions to archive", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, wrapDriver("failed to scan version id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, wrapDriver("failed to select versions to archive", err)
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE versions SET status = 'archived' WHERE id = ? AND status = 'active'`, id,
		); err != nil {
			return 0, wrapDriver(fmt.Sprintf("failed to archive version %s", id), err)
		}
		s.appendHistory(ctx, contentID, id, ActionArchive,
			fmt.Sprintf("archived on branch %s (keep %d)", branchName, keep))
	}

	return len(ids), nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, contentID string) ([]*HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content_id, version_id, action, details, created_at
		 FROM history WHERE content_id = ? ORDER BY id DESC`,
		contentID,
	)
	if err != nil {
		return nil, wrapDriver("failed to get history", err)
	}
	defer rows.Close()

	var events []*HistoryEvent
	for rows.Next() {
		var e HistoryEvent
		var details sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.ContentID, &e.VersionID, &e.Action, &details, &createdAt); err != nil {
			return nil, wrapDriver("failed to scan history event", err)
		}
		e.Details = details.String
		e.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, &e)
	}

	return events, rows.Err()
}

func (s *SQLiteStore) VariantVersionMetricMeans(ctx context.Context, experimentID string) (map[string]map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT variant_id, quality_metrics FROM versions
		 WHERE experiment_id = ? AND variant_id != '' AND quality_metrics IS NOT NULL`,
		experimentID,
	)
	if err != nil {
		return nil, wrapDriver("failed to query version metrics", err)
	}
	defer rows.Close()

	sums := make(map[string]map[string]float64)
	counts := make(map[string]map[string]int)

	for rows.Next() {
		var variantID, metricsJSON string
		if err := rows.Scan(&variantID, &metricsJSON); err != nil {
			return nil, wrapDriver("failed to scan version metrics", err)
		}

		var metrics map[string]float64
		if err := json.Unmarshal([]byte(metricsJSON), &metrics); err != nil {
			continue // skip malformed rows rather than failing analysis
		}

		if sums[variantID] == nil {
			sums[variantID] = make(map[string]float64)
			counts[variantID] = make(map[string]int)
		}
		for name, value := range metrics {
			sums[variantID][name] += value
			counts[variantID][name]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDriver("failed to query version metrics", err)
	}

	means := make(map[string]map[string]float64, len(sums))
	for variantID, metricSums := range sums {
		means[variantID] = make(map[string]float64, len(metricSums))
		for name, sum := range metricSums {
			means[variantID][name] = sum / float64(counts[variantID][name])
		}
	}

	return means, nil
}

// versionExists reports ErrNotFound when the id is unknown.
func (s *SQLiteStore) versionExists(ctx context.Context, versionID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM versions WHERE id = ?`, versionID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: parent version %s", ErrNotFound, versionID)
	}
	if err != nil {
		return wrapDriver("failed to check parent version", err)
	}
	return nil
}

// appendHistory writes an audit event. The audit trail is best-effort:
// a failed write is logged, never surfaced to the primary operation.
func (s *SQLiteStore) appendHistory(ctx context.Context, contentID, versionID string, action HistoryAction, details string) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (content_id, version_id, action, details, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		contentID, versionID, string(action), details, time.Now().Unix(),
	)
	if err != nil {
		log.Printf("warning: failed to record %s history event for %s: %v", action, versionID, err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*Version, error) {
	var v Version
	var parentID, metricsJSON sql.NullString
	var artifact string
	var createdAt int64

	err := row.Scan(&v.ID, &v.ContentID, &v.BranchName, &v.VersionNumber, &parentID, &v.ContentHash,
		&artifact, &metricsJSON, &v.ExperimentID, &v.VariantID, &v.Status, &createdAt)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		p := parentID.String
		v.ParentVersionID = &p
	}
	v.Artifact = json.RawMessage(artifact)
	if metricsJSON.Valid && metricsJSON.String != "" {
		if err := json.Unmarshal([]byte(metricsJSON.String), &v.QualityMetrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quality metrics: %w", err)
		}
	}
	v.CreatedAt = time.Unix(createdAt, 0)

	return &v, nil
}

func marshalMetrics(metrics map[string]float64) ([]byte, error) {
	if len(metrics) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quality metrics: %w", err)
	}
	return b, nil
}

func nullablePtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
