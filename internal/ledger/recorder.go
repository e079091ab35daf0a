package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Draft is an unvalidated movement as submitted by a caller.
type Draft struct {
	Date         time.Time
	Description  string
	Type         MovementType
	Category     Category
	ExchangeRate decimal.Decimal
	Amount       decimal.Decimal
	TowerID      *uint // explicit tower, for roles not bound to one
}

// Record validates a draft, resolves its scope and persists it atomically.
// For expenses the scope balance is recomputed inside the transaction while
// holding the scope's fund lock, so two concurrent expenses can never both
// pass the sufficiency check against a stale balance.
func Record(database *gorm.DB, actor Actor, draft Draft) (*Movement, error) {
	if !draft.Type.Valid() || !draft.Category.Valid() {
		return nil, ErrInvalidMovement
	}
	if !draft.Amount.IsPositive() {
		return nil, &AmountError{Field: "amount"}
	}
	if !draft.ExchangeRate.IsPositive() {
		return nil, &AmountError{Field: "exchange_rate"}
	}

	res, err := ResolveScope(actor, draft.Category, draft.Type, draft.TowerID)
	if err != nil {
		return nil, err
	}

	mov := &Movement{
		Date:         draft.Date,
		Description:  draft.Description,
		Type:         draft.Type,
		Category:     draft.Category,
		ExchangeRate: draft.ExchangeRate,
		TowerID:      res.TowerID,
		CreatedBy:    actor.UserID,
	}
	mov.setAmount(draft.Amount)

	err = database.Transaction(func(tx *gorm.DB) error {
		if draft.Type == Expense {
			if err := lockFund(tx, draft.Category, res.Scope); err != nil {
				return err
			}
			balance, err := Balance(tx, res.Scope, draft.Category, nil)
			if err != nil {
				return err
			}
			if balance.Sub(draft.Amount).IsNegative() {
				return &InsufficientFundsError{Balance: balance}
			}
		}
		return tx.Create(mov).Error
	})
	if err != nil {
		return nil, err
	}
	return mov, nil
}

// DeleteMovement removes a committed movement. Staff only. Removing an income
// row is refused when the scope's remaining balance would turn negative, so a
// delete can never retroactively break the invariant for the current state.
func DeleteMovement(database *gorm.DB, actor Actor, id uint) error {
	if !actor.Staff {
		return ErrUnauthorized
	}

	return database.Transaction(func(tx *gorm.DB) error {
		var mov Movement
		if err := tx.First(&mov, id).Error; err != nil {
			return err
		}

		scope := scopeForMovement(&mov)
		if err := lockFund(tx, mov.Category, scope); err != nil {
			return err
		}

		if mov.Type == Income {
			balance, err := Balance(tx, scope, mov.Category, nil)
			if err != nil {
				return err
			}
			if balance.Sub(mov.Amount()).IsNegative() {
				return &InsufficientFundsError{Balance: balance}
			}
		}
		return tx.Delete(&mov).Error
	})
}

// lockFund takes the (category, scope) fund-lock row FOR UPDATE, creating it
// on first use. Lock rows are pre-seeded at bootstrap; the FirstOrCreate is a
// safety net for scopes that appeared since.
func lockFund(tx *gorm.DB, category Category, scope Scope) error {
	lock := FundLock{Category: category, TowerID: scope.lockKey()}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("category = ? AND tower_id = ?", category, scope.lockKey()).
		FirstOrCreate(&lock).Error
}
