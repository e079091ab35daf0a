package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Balance computes net income minus expense for one (scope, category) pair as
// a single signed aggregate. An empty movement set yields zero. asOf, when
// set, truncates the sum to movements dated on or before it.
func Balance(tx *gorm.DB, scope Scope, category Category, asOf *time.Time) (decimal.Decimal, error) {
	col := category.amountColumn()

	q := tx.Model(&Movement{}).Where("category = ?", category)
	if !scope.IsGlobal() {
		q = q.Where("tower_id = ?", *scope.TowerID)
	}
	if asOf != nil {
		q = q.Where("date <= ?", *asOf)
	}

	var row struct {
		Balance decimal.Decimal
	}
	err := q.Select("COALESCE(SUM(CASE WHEN type = 'ING' THEN " + col + " ELSE -" + col + " END), 0) AS balance").
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Balance, nil
}
