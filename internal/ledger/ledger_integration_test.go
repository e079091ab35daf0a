package ledger_test

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/BalconesDeParaguana/BP-Backend/internal/db"
	"github.com/BalconesDeParaguana/BP-Backend/internal/ledger"
	"github.com/BalconesDeParaguana/BP-Backend/internal/seeds"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// dbAvailable tracks whether the database connection was established.
var dbAvailable bool

func TestMain(m *testing.M) {
	// Load .env.local relative to the repo root (two directories up).
	_ = godotenv.Load("../../.env.local")

	if os.Getenv("DATABASE_URL") == "" {
		// No database available — skip all integration tests gracefully.
		os.Exit(m.Run())
	}

	db.Connect()
	dbAvailable = true

	// Set up ledger tables (idempotent) and the global waste-fund lock row.
	ledger.Init()
	global := ledger.FundLock{Category: ledger.WasteFund, TowerID: 0}
	db.DB.Where("category = ? AND tower_id = ?", ledger.WasteFund, 0).FirstOrCreate(&global)

	os.Exit(m.Run())
}

// createTestTower inserts a uniquely-named tower plus its condominium fund
// lock, registering cleanup for the tower and everything recorded against it.
func createTestTower(t *testing.T) *ledger.Tower {
	t.Helper()
	if !dbAvailable {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}

	tower := ledger.Tower{Name: fmt.Sprintf("ZZ-%s", uuid.New().String()[:8])}
	if err := db.DB.Create(&tower).Error; err != nil {
		t.Fatalf("failed to create test tower: %v", err)
	}

	lock := ledger.FundLock{Category: ledger.Condominium, TowerID: tower.ID}
	if err := db.DB.Create(&lock).Error; err != nil {
		t.Fatalf("failed to create fund lock: %v", err)
	}

	t.Cleanup(func() {
		db.DB.Where("tower_id = ?", tower.ID).Delete(&ledger.Movement{})
		db.DB.Where("tower_id = ?", tower.ID).Delete(&ledger.PublishedReport{})
		db.DB.Where("tower_id = ?", tower.ID).Delete(&ledger.FundLock{})
		db.DB.Delete(&ledger.Tower{}, tower.ID)
	})
	return &tower
}

// newActor builds a test actor with a unique user id and registers cleanup of
// every movement it records (pooled waste rows included).
func newActor(t *testing.T, role string, towerID *uint) ledger.Actor {
	t.Helper()
	actor := ledger.Actor{
		UserID:  uuid.New().String(),
		Role:    role,
		TowerID: towerID,
	}
	t.Cleanup(func() {
		db.DB.Where("created_by = ?", actor.UserID).Delete(&ledger.Movement{})
	})
	return actor
}

func draft(category ledger.Category, movType ledger.MovementType, amount string) ledger.Draft {
	return ledger.Draft{
		Date:         time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		Description:  "integration test movement",
		Type:         movType,
		Category:     category,
		ExchangeRate: decimal.RequireFromString("36.50"),
		Amount:       decimal.RequireFromString(amount),
	}
}

func mustBalance(t *testing.T, scope ledger.Scope, category ledger.Category) decimal.Decimal {
	t.Helper()
	balance, err := ledger.Balance(db.DB, scope, category, nil)
	if err != nil {
		t.Fatalf("balance query failed: %v", err)
	}
	return balance
}

func TestCondominiumIncomeRaisesBalance(t *testing.T) {
	tower := createTestTower(t)
	actor := newActor(t, "LDT", &tower.ID)

	if _, err := ledger.Record(db.DB, actor, draft(ledger.Condominium, ledger.Income, "100")); err != nil {
		t.Fatalf("record income: %v", err)
	}

	balance := mustBalance(t, ledger.TowerScope(tower.ID), ledger.Condominium)
	if !balance.Equal(decimal.RequireFromString("100")) {
		t.Errorf("expected balance 100, got %s", balance)
	}
}

func TestExpenseExceedingBalanceRejected(t *testing.T) {
	tower := createTestTower(t)
	actor := newActor(t, "LDT", &tower.ID)

	if _, err := ledger.Record(db.DB, actor, draft(ledger.Condominium, ledger.Income, "100")); err != nil {
		t.Fatalf("record income: %v", err)
	}

	_, err := ledger.Record(db.DB, actor, draft(ledger.Condominium, ledger.Expense, "150"))
	var fundsErr *ledger.InsufficientFundsError
	if !errors.As(err, &fundsErr) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if !fundsErr.Balance.Equal(decimal.RequireFromString("100")) {
		t.Errorf("expected reported balance 100, got %s", fundsErr.Balance)
	}

	// No partial write: balance unchanged.
	balance := mustBalance(t, ledger.TowerScope(tower.ID), ledger.Condominium)
	if !balance.Equal(decimal.RequireFromString("100")) {
		t.Errorf("expected balance still 100, got %s", balance)
	}
}

func TestValidationRejectsNonPositiveInput(t *testing.T) {
	tower := createTestTower(t)
	actor := newActor(t, "LDT", &tower.ID)

	bad := draft(ledger.Condominium, ledger.Income, "0")
	_, err := ledger.Record(db.DB, actor, bad)
	var amountErr *ledger.AmountError
	if !errors.As(err, &amountErr) || amountErr.Field != "amount" {
		t.Errorf("expected AmountError on amount, got %v", err)
	}

	bad = draft(ledger.Condominium, ledger.Income, "10")
	bad.ExchangeRate = decimal.Zero
	_, err = ledger.Record(db.DB, actor, bad)
	if !errors.As(err, &amountErr) || amountErr.Field != "exchange_rate" {
		t.Errorf("expected AmountError on exchange_rate, got %v", err)
	}
}

// TestWasteFundPooledExpense: income attributed to tower A funds an expense
// filed by tower B's leader, because waste expenses draw on the global pool.
func TestWasteFundPooledExpense(t *testing.T) {
	towerA := createTestTower(t)
	towerB := createTestTower(t)
	leaderA := newActor(t, "LDT", &towerA.ID)
	leaderB := newActor(t, "LDT", &towerB.ID)

	baseline := mustBalance(t, ledger.Global, ledger.WasteFund)

	if _, err := ledger.Record(db.DB, leaderA, draft(ledger.WasteFund, ledger.Income, "50")); err != nil {
		t.Fatalf("record waste income: %v", err)
	}

	mov, err := ledger.Record(db.DB, leaderB, draft(ledger.WasteFund, ledger.Expense, "50"))
	if err != nil {
		t.Fatalf("pooled waste expense should succeed, got %v", err)
	}
	if mov.TowerID == nil || *mov.TowerID != towerB.ID {
		t.Errorf("expected advisory attribution to tower B, got %v", mov.TowerID)
	}

	after := mustBalance(t, ledger.Global, ledger.WasteFund)
	if !after.Equal(baseline) {
		t.Errorf("expected global balance back at baseline %s, got %s", baseline, after)
	}
}

// TestScopeIsolation: spending tower A's condominium funds leaves tower B
// untouched.
func TestScopeIsolation(t *testing.T) {
	towerA := createTestTower(t)
	towerB := createTestTower(t)
	leaderA := newActor(t, "LDT", &towerA.ID)
	leaderB := newActor(t, "LDT", &towerB.ID)

	if _, err := ledger.Record(db.DB, leaderA, draft(ledger.Condominium, ledger.Income, "80")); err != nil {
		t.Fatalf("record income A: %v", err)
	}
	if _, err := ledger.Record(db.DB, leaderB, draft(ledger.Condominium, ledger.Income, "30")); err != nil {
		t.Fatalf("record income B: %v", err)
	}
	if _, err := ledger.Record(db.DB, leaderA, draft(ledger.Condominium, ledger.Expense, "50")); err != nil {
		t.Fatalf("record expense A: %v", err)
	}

	balanceA := mustBalance(t, ledger.TowerScope(towerA.ID), ledger.Condominium)
	balanceB := mustBalance(t, ledger.TowerScope(towerB.ID), ledger.Condominium)
	if !balanceA.Equal(decimal.RequireFromString("30")) {
		t.Errorf("tower A: expected 30, got %s", balanceA)
	}
	if !balanceB.Equal(decimal.RequireFromString("30")) {
		t.Errorf("tower B: expected 30, got %s", balanceB)
	}
}

// TestConcurrentExpensesRace: two expenses that individually fit the balance
// but jointly exceed it must end as one success and one rejection.
func TestConcurrentExpensesRace(t *testing.T) {
	tower := createTestTower(t)
	actor := newActor(t, "LDT", &tower.ID)

	if _, err := ledger.Record(db.DB, actor, draft(ledger.Condominium, ledger.Income, "100")); err != nil {
		t.Fatalf("record income: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Record(db.DB, actor, draft(ledger.Condominium, ledger.Expense, "60"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, rejections int
	for err := range results {
		switch {
		case err == nil:
			successes++
		default:
			var fundsErr *ledger.InsufficientFundsError
			if !errors.As(err, &fundsErr) {
				t.Fatalf("unexpected error: %v", err)
			}
			rejections++
		}
	}

	if successes != 1 || rejections != 1 {
		t.Fatalf("expected exactly one success and one rejection, got %d/%d", successes, rejections)
	}

	balance := mustBalance(t, ledger.TowerScope(tower.ID), ledger.Condominium)
	if !balance.Equal(decimal.RequireFromString("40")) {
		t.Errorf("expected final balance 40, got %s", balance)
	}
}

// TestBalanceAsOfExcludesLaterMovements: the asOf cutoff truncates the sum to
// movements dated on or before it.
func TestBalanceAsOfExcludesLaterMovements(t *testing.T) {
	tower := createTestTower(t)
	actor := newActor(t, "LDT", &tower.ID)

	dayOne := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	dayTwo := time.Date(2025, time.April, 2, 0, 0, 0, 0, time.UTC)

	early := draft(ledger.Condominium, ledger.Income, "100")
	early.Date = dayOne
	if _, err := ledger.Record(db.DB, actor, early); err != nil {
		t.Fatalf("record day-one income: %v", err)
	}

	late := draft(ledger.Condominium, ledger.Income, "40")
	late.Date = dayTwo
	if _, err := ledger.Record(db.DB, actor, late); err != nil {
		t.Fatalf("record day-two income: %v", err)
	}

	asOf, err := ledger.Balance(db.DB, ledger.TowerScope(tower.ID), ledger.Condominium, &dayOne)
	if err != nil {
		t.Fatalf("as-of balance: %v", err)
	}
	if !asOf.Equal(decimal.RequireFromString("100")) {
		t.Errorf("as-of day one: expected 100, got %s", asOf)
	}

	full := mustBalance(t, ledger.TowerScope(tower.ID), ledger.Condominium)
	if !full.Equal(decimal.RequireFromString("140")) {
		t.Errorf("untruncated balance: expected 140, got %s", full)
	}
}

func TestPublishIsIdempotentUpsert(t *testing.T) {
	tower := createTestTower(t)
	leader := newActor(t, "LDT", &tower.ID)

	input := ledger.PublishInput{
		Month:       1,
		Year:        2025,
		Category:    ledger.Condominium,
		ArtifactRef: "reports/2025-01-condominio-a.pdf",
	}
	if _, err := ledger.Publish(db.DB, leader, input); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	input.ArtifactRef = "reports/2025-01-condominio-b.pdf"
	report, err := ledger.Publish(db.DB, leader, input)
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}

	var count int64
	db.DB.Model(&ledger.PublishedReport{}).
		Where("month = ? AND year = ? AND category = ? AND tower_id = ?", 1, 2025, ledger.Condominium, tower.ID).
		Count(&count)
	if count != 1 {
		t.Errorf("expected exactly one report row, got %d", count)
	}
	if report.ArtifactRef != "reports/2025-01-condominio-b.pdf" {
		t.Errorf("expected second artifact to win, got %q", report.ArtifactRef)
	}
	if report.PublishedBy != leader.UserID {
		t.Errorf("expected publisher %q, got %q", leader.UserID, report.PublishedBy)
	}
}

// TestPublishGlobalReportIdempotentUpsert: Postgres keeps NULL tower_id values
// distinct in the unique index, so republishing the pooled waste report relies
// on the app-side upsert under the global fund lock. Exactly one row must
// survive a republish.
func TestPublishGlobalReportIdempotentUpsert(t *testing.T) {
	if !dbAvailable {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}
	general := newActor(t, "LDG", nil)

	// A year far from real data so leftovers from aborted runs can't collide.
	input := ledger.PublishInput{
		Month:       7,
		Year:        2031,
		Category:    ledger.WasteFund,
		ArtifactRef: "reports/2031-07-basura-a.pdf",
	}
	t.Cleanup(func() {
		db.DB.Where("month = ? AND year = ? AND category = ? AND tower_id IS NULL",
			input.Month, input.Year, ledger.WasteFund).Delete(&ledger.PublishedReport{})
	})

	first, err := ledger.Publish(db.DB, general, input)
	if err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if first.TowerID != nil {
		t.Fatalf("expected pooled report with no tower, got %v", first.TowerID)
	}

	input.ArtifactRef = "reports/2031-07-basura-b.pdf"
	second, err := ledger.Publish(db.DB, general, input)
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}

	var count int64
	db.DB.Model(&ledger.PublishedReport{}).
		Where("month = ? AND year = ? AND category = ? AND tower_id IS NULL",
			input.Month, input.Year, ledger.WasteFund).
		Count(&count)
	if count != 1 {
		t.Errorf("expected exactly one pooled report row, got %d", count)
	}
	if second.ID != first.ID {
		t.Errorf("republish created a new row: %d then %d", first.ID, second.ID)
	}
	if second.ArtifactRef != "reports/2031-07-basura-b.pdf" {
		t.Errorf("expected second artifact to win, got %q", second.ArtifactRef)
	}
}

func TestDeleteReportPermissionMatrix(t *testing.T) {
	tower := createTestTower(t)
	otherTower := createTestTower(t)

	owner := newActor(t, "LDT", &tower.ID)
	stranger := newActor(t, "LDT", &otherTower.ID)
	general := newActor(t, "LDG", nil)

	report, err := ledger.Publish(db.DB, owner, ledger.PublishInput{
		Month:       2,
		Year:        2025,
		Category:    ledger.Condominium,
		ArtifactRef: "reports/2025-02.pdf",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := ledger.DeleteReport(db.DB, stranger, report.ID); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("foreign tower leader: expected ErrUnauthorized, got %v", err)
	}
	if err := ledger.DeleteReport(db.DB, owner, report.ID); err != nil {
		t.Errorf("own tower leader: expected success, got %v", err)
	}

	// Waste report: waste admins may delete, plain tower leaders may not.
	wasteReport, err := ledger.Publish(db.DB, general, ledger.PublishInput{
		Month:       2,
		Year:        2025,
		Category:    ledger.WasteFund,
		ArtifactRef: "reports/2025-02-basura.pdf",
	})
	if err != nil {
		t.Fatalf("publish waste report: %v", err)
	}
	t.Cleanup(func() { db.DB.Delete(&ledger.PublishedReport{}, wasteReport.ID) })

	if err := ledger.DeleteReport(db.DB, owner, wasteReport.ID); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("tower leader on waste report: expected ErrUnauthorized, got %v", err)
	}
	wasteAdmin := newActor(t, "LDT", nil)
	wasteAdmin.WasteAdmin = true
	if err := ledger.DeleteReport(db.DB, wasteAdmin, wasteReport.ID); err != nil {
		t.Errorf("waste admin: expected success, got %v", err)
	}
}

func TestDeleteMovementKeepsInvariant(t *testing.T) {
	tower := createTestTower(t)
	leader := newActor(t, "LDT", &tower.ID)
	staff := newActor(t, "LDG", nil)
	staff.Staff = true

	income, err := ledger.Record(db.DB, leader, draft(ledger.Condominium, ledger.Income, "50"))
	if err != nil {
		t.Fatalf("record income: %v", err)
	}
	expense, err := ledger.Record(db.DB, leader, draft(ledger.Condominium, ledger.Expense, "30"))
	if err != nil {
		t.Fatalf("record expense: %v", err)
	}

	// Non-staff may not delete at all.
	if err := ledger.DeleteMovement(db.DB, leader, income.ID); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for non-staff, got %v", err)
	}

	// Deleting the income would leave the scope at -30: refused.
	var fundsErr *ledger.InsufficientFundsError
	if err := ledger.DeleteMovement(db.DB, staff, income.ID); !errors.As(err, &fundsErr) {
		t.Errorf("expected InsufficientFundsError, got %v", err)
	}

	// Removing the expense first makes the income deletable.
	if err := ledger.DeleteMovement(db.DB, staff, expense.ID); err != nil {
		t.Errorf("delete expense: %v", err)
	}
	if err := ledger.DeleteMovement(db.DB, staff, income.ID); err != nil {
		t.Errorf("delete income after expense removed: %v", err)
	}
}

func TestSeedTowersIdempotent(t *testing.T) {
	if !dbAvailable {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}

	if err := seeds.SeedTowers(); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	var before int64
	db.DB.Model(&ledger.Tower{}).Where("name LIKE 'T%'").Count(&before)

	if err := seeds.SeedTowers(); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	var after int64
	db.DB.Model(&ledger.Tower{}).Where("name LIKE 'T%'").Count(&after)

	if before != after {
		t.Errorf("seeding twice changed tower count: %d -> %d", before, after)
	}

	var t01 ledger.Tower
	if err := db.DB.First(&t01, "name = ?", "T01").Error; err != nil {
		t.Errorf("expected tower T01 to exist: %v", err)
	}
}

// TestFetchOrdersByDateThenID: same-date movements keep insertion order.
func TestFetchOrdersByDateThenID(t *testing.T) {
	tower := createTestTower(t)
	leader := newActor(t, "LDT", &tower.ID)

	d := draft(ledger.Condominium, ledger.Income, "10")
	d.Description = "first"
	if _, err := ledger.Record(db.DB, leader, d); err != nil {
		t.Fatalf("record: %v", err)
	}
	d = draft(ledger.Condominium, ledger.Income, "20")
	d.Description = "second"
	if _, err := ledger.Record(db.DB, leader, d); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := ledger.Fetch(db.DB, ledger.Filter{
		Category: ledger.Condominium,
		TowerID:  &tower.ID,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Description != "first" || entries[1].Description != "second" {
		t.Errorf("entries out of insertion order: %q, %q", entries[0].Description, entries[1].Description)
	}
	if !entries[1].RunningBalance.Equal(decimal.RequireFromString("30")) {
		t.Errorf("expected final running balance 30, got %s", entries[1].RunningBalance)
	}
}
