package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/telesight/cdr-intel/internal/fraud"
)

type associationRow struct {
	CaseID     string    `db:"case_id"`
	Imei       string    `db:"imei"`
	Number     string    `db:"number"`
	Role       string    `db:"role"`
	ObservedAt time.Time `db:"observed_at"`
}

type caseRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Owner    string `db:"owner"`
	Division string `db:"division"`
}

// CaseRepository serves IMEI/number association history for the fraud
// correlators. Ordering by (observed_at, id) keeps result order stable: the
// correlators derive baselines and first-encounter order from it.
type CaseRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db *sqlx.DB, logger *slog.Logger) *CaseRepository {
	return &CaseRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

const associationColumns = "case_id, imei, number, role, observed_at"

// CaseAssociations returns every association of one case in observation order.
func (r *CaseRepository) CaseAssociations(ctx context.Context, caseID string) ([]fraud.Association, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM imei_associations
		WHERE case_id = $1
		ORDER BY observed_at, id`, associationColumns)

	return r.selectAssociations(ctx, query, caseID)
}

// AssociationsByNumber returns all cross-case associations of a number.
func (r *CaseRepository) AssociationsByNumber(ctx context.Context, number string) ([]fraud.Association, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM imei_associations
		WHERE number = $1
		ORDER BY observed_at, id`, associationColumns)

	return r.selectAssociations(ctx, query, number)
}

// AssociationsByImei returns all cross-case associations of a device.
func (r *CaseRepository) AssociationsByImei(ctx context.Context, imei string) ([]fraud.Association, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM imei_associations
		WHERE imei = $1
		ORDER BY observed_at, id`, associationColumns)

	return r.selectAssociations(ctx, query, imei)
}

// AssociationsByImeis batches AssociationsByImei over several devices.
func (r *CaseRepository) AssociationsByImeis(ctx context.Context, imeis []string) ([]fraud.Association, error) {
	if len(imeis) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT %s FROM imei_associations
		WHERE imei = ANY($1)
		ORDER BY observed_at, id`, associationColumns)

	return r.selectAssociations(ctx, query, pq.Array(imeis))
}

// AssociationsByNumbers batches AssociationsByNumber over several numbers.
func (r *CaseRepository) AssociationsByNumbers(ctx context.Context, numbers []string) ([]fraud.Association, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT %s FROM imei_associations
		WHERE number = ANY($1)
		ORDER BY observed_at, id`, associationColumns)

	return r.selectAssociations(ctx, query, pq.Array(numbers))
}

// Cases resolves case metadata for the given ids.
func (r *CaseRepository) Cases(ctx context.Context, caseIDs []string) (map[string]fraud.CaseInfo, error) {
	if len(caseIDs) == 0 {
		return map[string]fraud.CaseInfo{}, nil
	}

	query := `
		SELECT id, name, owner, division FROM cases
		WHERE id = ANY($1)`

	var rows []caseRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(caseIDs)); err != nil {
		r.logger.Error("Failed to load cases", "count", len(caseIDs), "error", err)
		return nil, fmt.Errorf("failed to load cases: %w", err)
	}

	cases := make(map[string]fraud.CaseInfo, len(rows))
	for _, row := range rows {
		cases[row.ID] = fraud.CaseInfo{
			ID:       row.ID,
			Name:     row.Name,
			Owner:    row.Owner,
			Division: row.Division,
		}
	}
	return cases, nil
}

// RecordAssociation stores one observed (IMEI, number) co-occurrence.
func (r *CaseRepository) RecordAssociation(ctx context.Context, assoc fraud.Association) error {
	query := `
		INSERT INTO imei_associations (case_id, imei, number, role, observed_at)
		VALUES (:case_id, :imei, :number, :role, :observed_at)`

	row := associationRow{
		CaseID:     assoc.CaseID,
		Imei:       assoc.Imei,
		Number:     assoc.Number,
		Role:       string(assoc.Role),
		ObservedAt: assoc.ObservedAt,
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		r.logger.Error("Failed to record association",
			"case_id", assoc.CaseID, "imei", assoc.Imei, "error", err)
		return fmt.Errorf("failed to record association: %w", err)
	}
	return nil
}

func (r *CaseRepository) selectAssociations(ctx context.Context, query string, arg interface{}) ([]fraud.Association, error) {
	var rows []associationRow
	if err := r.db.SelectContext(ctx, &rows, query, arg); err != nil {
		r.logger.Error("Failed to load associations", "error", err)
		return nil, fmt.Errorf("failed to load associations: %w", err)
	}

	associations := make([]fraud.Association, 0, len(rows))
	for _, row := range rows {
		associations = append(associations, fraud.Association{
			CaseID:     row.CaseID,
			Imei:       row.Imei,
			Number:     row.Number,
			Role:       fraud.Role(row.Role),
			ObservedAt: row.ObservedAt,
		})
	}
	return associations, nil
}
