package ledger

import (
	"gorm.io/gorm"
)

// PublishInput names the period snapshot to freeze and the rendered artifact
// already stored by the document service.
type PublishInput struct {
	Month       int
	Year        int
	Category    Category
	TowerID     *uint
	ArtifactRef string
}

// Publish freezes a (month, year, category, scope) snapshot. Republishing the
// same key overwrites the artifact reference and publisher instead of adding a
// row; balances are not recomputed here. Tower leaders always publish for
// their own tower.
func Publish(database *gorm.DB, actor Actor, in PublishInput) (*PublishedReport, error) {
	if !in.Category.Valid() {
		return nil, ErrInvalidMovement
	}
	if in.Month < 1 || in.Month > 12 || in.Year < 2000 {
		return nil, &PeriodError{Reason: "invalid report period"}
	}

	var tower *uint
	switch {
	case actor.general():
		tower = in.TowerID
	case actor.Role == roleTowerLeader:
		if actor.TowerID == nil {
			return nil, &ScopeError{Reason: "no tower assigned to this leader"}
		}
		tower = actor.TowerID
	case actor.WasteAdmin && in.Category == WasteFund:
		tower = nil // waste admins publish the pooled report
	default:
		return nil, ErrUnauthorized
	}

	scope := Global
	if tower != nil {
		scope = TowerScope(*tower)
	}

	report := PublishedReport{
		Month:    in.Month,
		Year:     in.Year,
		Category: in.Category,
		TowerID:  tower,
	}

	// Upsert under the scope's fund lock. Postgres keeps NULL tower_id values
	// distinct in the unique index, so idempotency for global reports is
	// enforced here rather than by the index.
	err := database.Transaction(func(tx *gorm.DB) error {
		if err := lockFund(tx, in.Category, scope); err != nil {
			return err
		}

		q := tx.Where("month = ? AND year = ? AND category = ?", in.Month, in.Year, in.Category)
		if tower == nil {
			q = q.Where("tower_id IS NULL")
		} else {
			q = q.Where("tower_id = ?", *tower)
		}
		return q.Assign(map[string]interface{}{
			"published_by": actor.UserID,
			"artifact_ref": in.ArtifactRef,
		}).FirstOrCreate(&report).Error
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// DeleteReport removes a published snapshot, applying the category-dependent
// permission matrix: waste reports fall to general leaders, staff or waste
// admins; condominium reports also to the tower's own leader.
func DeleteReport(database *gorm.DB, actor Actor, id uint) error {
	var report PublishedReport
	if err := database.First(&report, id).Error; err != nil {
		return err
	}

	allowed := false
	if report.Category == WasteFund {
		allowed = actor.general() || actor.WasteAdmin
	} else {
		ownTower := actor.Role == roleTowerLeader &&
			actor.TowerID != nil && report.TowerID != nil &&
			*actor.TowerID == *report.TowerID
		allowed = actor.general() || ownTower
	}
	if !allowed {
		return ErrUnauthorized
	}

	return database.Delete(&report).Error
}
