package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType uses the original system's wire codes.
type MovementType string

const (
	Income  MovementType = "ING"
	Expense MovementType = "EGR"
)

func (t MovementType) Valid() bool {
	return t == Income || t == Expense
}

// Category selects which of the two isolated ledgers a movement belongs to:
// per-tower condominium dues or the shared waste-room fund.
type Category string

const (
	Condominium Category = "CON"
	WasteFund   Category = "BAS"
)

func (c Category) Valid() bool {
	return c == Condominium || c == WasteFund
}

// CategoryFromSlug maps the public URL slugs onto category codes.
func CategoryFromSlug(slug string) (Category, bool) {
	switch slug {
	case "condominio":
		return Condominium, true
	case "basura":
		return WasteFund, true
	}
	return "", false
}

func (c Category) Slug() string {
	if c == WasteFund {
		return "basura"
	}
	return "condominio"
}

// amountColumn names the SQL column holding this category's amounts.
func (c Category) amountColumn() string {
	if c == WasteFund {
		return "amount_waste"
	}
	return "amount_condominium"
}

// Tower is one of the community's sub-units (T01..T24). Seeded once at
// bootstrap and immutable afterwards.
type Tower struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

func (Tower) TableName() string { return "ledger.towers" }

// Movement is a single financial event. Each row affects exactly one category
// ledger: the other category's amount column is stored as zero, never NULL, so
// balance queries stay category-pure without conditionals.
type Movement struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Date        time.Time    `gorm:"type:date;not null;index" json:"date"`
	Description string       `gorm:"not null" json:"description"`
	Type        MovementType `gorm:"type:varchar(3);not null" json:"type"`
	Category    Category     `gorm:"type:varchar(3);not null;index" json:"category"`

	// Reference BCV rate at entry time. Audit only: never part of balance
	// arithmetic.
	ExchangeRate decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"exchange_rate"`

	AmountCondominium decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount_condominium"`
	AmountWaste       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount_waste"`

	// NULL for pooled waste-fund movements with no tower attribution.
	TowerID *uint  `gorm:"index" json:"tower_id,omitempty"`
	Tower   *Tower `gorm:"foreignKey:TowerID" json:"tower,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (Movement) TableName() string { return "ledger.movements" }

// Amount returns the movement's amount in its own category.
func (m *Movement) Amount() decimal.Decimal {
	if m.Category == WasteFund {
		return m.AmountWaste
	}
	return m.AmountCondominium
}

// setAmount stores amt in the category's column and zeroes the other one.
func (m *Movement) setAmount(amt decimal.Decimal) {
	if m.Category == WasteFund {
		m.AmountWaste = amt
		m.AmountCondominium = decimal.Zero
	} else {
		m.AmountCondominium = amt
		m.AmountWaste = decimal.Zero
	}
}

// PublishedReport is an immutable monthly snapshot. Republishing the same
// (month, year, category, tower) overwrites the artifact reference instead of
// creating a second row.
type PublishedReport struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Month       int       `gorm:"not null;index:idx_report_period,unique" json:"month"`
	Year        int       `gorm:"not null;index:idx_report_period,unique" json:"year"`
	Category    Category  `gorm:"type:varchar(3);not null;index:idx_report_period,unique" json:"category"`
	TowerID     *uint     `gorm:"index:idx_report_period,unique" json:"tower_id,omitempty"`
	Tower       *Tower    `gorm:"foreignKey:TowerID" json:"tower,omitempty"`
	PublishedBy string    `json:"published_by"`
	ArtifactRef string    `json:"artifact_ref"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (PublishedReport) TableName() string { return "ledger.published_reports" }

// FundLock rows carry no data; one exists per (category, scope) so writers can
// SELECT ... FOR UPDATE it and serialize the balance-check/insert sequence.
// TowerID 0 stands for the global waste pool, which keeps the composite unique
// index honest (Postgres would treat NULLs as distinct).
type FundLock struct {
	ID       uint     `gorm:"primaryKey"`
	Category Category `gorm:"type:varchar(3);not null;index:idx_fund_lock,unique"`
	TowerID  uint     `gorm:"not null;index:idx_fund_lock,unique"`
}

func (FundLock) TableName() string { return "ledger.fund_locks" }

// Scope is the balance-isolation unit: one tower, or the global pool when
// TowerID is nil (waste fund only).
type Scope struct {
	TowerID *uint
}

var Global = Scope{}

func TowerScope(id uint) Scope {
	return Scope{TowerID: &id}
}

func (s Scope) IsGlobal() bool { return s.TowerID == nil }

// lockKey maps the scope onto the fund-lock tower column.
func (s Scope) lockKey() uint {
	if s.TowerID == nil {
		return 0
	}
	return *s.TowerID
}
