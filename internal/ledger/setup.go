package ledger

import (
	"log"

	"github.com/BalconesDeParaguana/BP-Backend/internal/db"
)

func Init() {
	if err := db.EnsureSchema(db.DB, "ledger"); err != nil {
		log.Fatal("Failed to ensure schema ledger: ", err)
	}

	if err := db.DB.AutoMigrate(
		&Tower{},
		&Movement{},
		&PublishedReport{},
		&FundLock{},
	); err != nil {
		log.Fatal("Failed to auto-migrate ledger tables: ", err)
	}

	// Composite index backing the (date, id) ordering every balance and
	// projection query walks.
	if err := db.DB.Exec(`
		CREATE INDEX IF NOT EXISTS idx_movement_order
		ON ledger.movements (category, date, id);
	`).Error; err != nil {
		log.Fatal("Failed to create idx_movement_order: ", err)
	}

	log.Println("Ledger module initialized")
}
