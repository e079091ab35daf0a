package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Filter selects the movements a ledger view covers. Category is mandatory;
// everything else narrows the set.
type Filter struct {
	Category Category
	TowerID  *uint // nil = all towers
	Type     *MovementType
	From     *time.Time
	To       *time.Time
}

// Entry is one ledger row annotated with the balance after it applied.
type Entry struct {
	Movement
	RunningBalance decimal.Decimal `json:"running_balance"`
}

// Fetch loads the matching movements in (date, id) order and folds them into
// running-balance entries.
func Fetch(database *gorm.DB, f Filter) ([]Entry, error) {
	if !f.Category.Valid() {
		return nil, ErrInvalidMovement
	}

	q := database.Where("category = ?", f.Category).Preload("Tower")
	if f.TowerID != nil {
		q = q.Where("tower_id = ?", *f.TowerID)
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.From != nil {
		q = q.Where("date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("date <= ?", *f.To)
	}

	var movements []Movement
	if err := q.Order("date, id").Find(&movements).Error; err != nil {
		return nil, err
	}
	return Project(movements), nil
}

// Project is a pure left fold over an ordered movement slice. Recomputable
// from scratch at any time; an empty input yields an empty slice with implied
// balance zero, never a synthetic starting row.
func Project(movements []Movement) []Entry {
	entries := make([]Entry, 0, len(movements))
	running := decimal.Zero

	for _, mov := range movements {
		amount := mov.Amount()
		if mov.Type == Income {
			running = running.Add(amount)
		} else {
			running = running.Sub(amount)
		}
		entries = append(entries, Entry{Movement: mov, RunningBalance: running})
	}
	return entries
}
