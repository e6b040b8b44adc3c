package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	fees "coaching-fees/internal/fees/domain"
)

const structureColumns = `s.id, s.coaching_id, s.name, s.description, s.concern, s.amount, s.billing_cycle,
	s.late_fine_per_day, s.tax, s.line_items, s.installments, s.is_active, s.version, s.created_at, s.updated_at,
	(SELECT COUNT(*) FROM fee_assignments a WHERE a.fee_structure_id = s.id AND a.status = 'ACTIVE')`

// GetStructure loads a structure with its live assignment count.
func (s *Store) GetStructure(ctx context.Context, coachingID, id string) (*fees.FeeStructure, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("fees store: nil db")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT `+structureColumns+`
FROM fee_structures s
WHERE s.coaching_id = $1 AND s.id = $2`, coachingID, id)
	return scanStructure(row)
}

// ListStructures lists structures by name.
func (s *Store) ListStructures(ctx context.Context, coachingID string, includeInactive bool) ([]fees.FeeStructure, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("fees store: nil db")
	}
	query := `
SELECT ` + structureColumns + `
FROM fee_structures s
WHERE s.coaching_id = $1`
	if !includeInactive {
		query += " AND s.is_active"
	}
	query += " ORDER BY s.name ASC, s.id ASC"

	rows, err := s.db.QueryContext(ctx, query, coachingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]fees.FeeStructure, 0)
	for rows.Next() {
		structure, err := scanStructure(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *structure)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateStructure inserts a structure.
func (s *Store) CreateStructure(ctx context.Context, structure fees.FeeStructure) error {
	if s == nil || s.db == nil {
		return errors.New("fees store: nil db")
	}
	tax, lineItems, installments, err := encodeStructureJSON(structure)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO fee_structures (
	id, coaching_id, name, description, concern, amount, billing_cycle, late_fine_per_day,
	tax, line_items, installments, is_active, version, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)`,
		structure.ID, structure.CoachingID, structure.Name, structure.Description, structure.Concern,
		structure.Amount, string(structure.BillingCycle), structure.LateFinePerDay,
		tax, lineItems, installments, structure.IsActive, structure.Version, structure.CreatedAt, structure.UpdatedAt,
	)
	return mapError(err)
}

// UpdateStructure replaces a structure when its version matches.
func (s *Store) UpdateStructure(ctx context.Context, structure fees.FeeStructure, expectedVersion int) error {
	if s == nil || s.db == nil {
		return errors.New("fees store: nil db")
	}
	tax, lineItems, installments, err := encodeStructureJSON(structure)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE fee_structures
SET name = $1, description = $2, concern = $3, amount = $4, billing_cycle = $5, late_fine_per_day = $6,
	tax = $7, line_items = $8, installments = $9, is_active = $10, version = version + 1, updated_at = $11
WHERE coaching_id = $12 AND id = $13 AND version = $14`,
		structure.Name, structure.Description, structure.Concern, structure.Amount, string(structure.BillingCycle),
		structure.LateFinePerDay, tax, lineItems, installments, structure.IsActive, structure.UpdatedAt,
		structure.CoachingID, structure.ID, expectedVersion,
	)
	if err != nil {
		return mapError(err)
	}
	return checkAffected(res, func() error {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM fee_structures WHERE coaching_id = $1 AND id = $2)`, structure.CoachingID, structure.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fees.NotFound("fee structure", structure.ID)
		}
		return fees.Conflict("fee structure %s was modified concurrently", structure.ID)
	})
}

// DeleteStructure removes an unreferenced structure or deactivates a referenced one.
func (s *Store) DeleteStructure(ctx context.Context, coachingID, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("fees store: nil db")
	}
	deactivated := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var locked string
		err := tx.QueryRowContext(ctx, `
SELECT id FROM fee_structures WHERE coaching_id = $1 AND id = $2 FOR UPDATE`, coachingID, id).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return fees.NotFound("fee structure", id)
		}
		if err != nil {
			return err
		}
		var referenced bool
		if err := tx.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM fee_assignments WHERE fee_structure_id = $1)`, id).Scan(&referenced); err != nil {
			return err
		}
		if referenced {
			deactivated = true
			_, err = tx.ExecContext(ctx, `
UPDATE fee_structures SET is_active = FALSE, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM fee_structures WHERE id = $1`, id)
		return err
	})
	return deactivated, err
}

func encodeStructureJSON(structure fees.FeeStructure) (string, string, string, error) {
	tax, err := json.Marshal(structure.Tax)
	if err != nil {
		return "", "", "", fmt.Errorf("fees store: encode tax: %w", err)
	}
	items := structure.LineItems
	if items == nil {
		items = []fees.LineItem{}
	}
	lineItems, err := json.Marshal(items)
	if err != nil {
		return "", "", "", fmt.Errorf("fees store: encode line items: %w", err)
	}
	installments, err := json.Marshal(structure.Installments)
	if err != nil {
		return "", "", "", fmt.Errorf("fees store: encode installments: %w", err)
	}
	return string(tax), string(lineItems), string(installments), nil
}

func scanStructure(row rowScanner) (*fees.FeeStructure, error) {
	var (
		structure                    fees.FeeStructure
		cycle                        string
		tax, lineItems, installments []byte
	)
	if err := row.Scan(
		&structure.ID,
		&structure.CoachingID,
		&structure.Name,
		&structure.Description,
		&structure.Concern,
		&structure.Amount,
		&cycle,
		&structure.LateFinePerDay,
		&tax,
		&lineItems,
		&installments,
		&structure.IsActive,
		&structure.Version,
		&structure.CreatedAt,
		&structure.UpdatedAt,
		&structure.AssignmentCount,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	structure.BillingCycle = fees.BillingCycle(cycle)
	structure.CreatedAt = structure.CreatedAt.UTC()
	structure.UpdatedAt = structure.UpdatedAt.UTC()
	if err := json.Unmarshal(tax, &structure.Tax); err != nil {
		return nil, fmt.Errorf("fees store: decode tax: %w", err)
	}
	if err := json.Unmarshal(lineItems, &structure.LineItems); err != nil {
		return nil, fmt.Errorf("fees store: decode line items: %w", err)
	}
	if err := json.Unmarshal(installments, &structure.Installments); err != nil {
		return nil, fmt.Errorf("fees store: decode installments: %w", err)
	}
	return &structure, nil
}
