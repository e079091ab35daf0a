package seeds

import (
	"fmt"
	"log"
	"os"

	"github.com/BalconesDeParaguana/BP-Backend/internal/auth"
	"github.com/BalconesDeParaguana/BP-Backend/internal/db"
	"github.com/BalconesDeParaguana/BP-Backend/internal/ledger"
	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const towerCount = 24

func SeedAll() error {
	if err := SeedTowers(); err != nil {
		return err
	}
	if err := SeedFundLocks(); err != nil {
		return err
	}
	return SeedAdmin("seeds/bootstrap.yaml")
}

// SeedTowers creates T01..T24, skipping any name that already exists. Safe to
// run on every deploy.
func SeedTowers() error {
	var existing []string
	if err := db.DB.Model(&ledger.Tower{}).Pluck("name", &existing).Error; err != nil {
		return err
	}

	present := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		present[name] = struct{}{}
	}

	var missing []ledger.Tower
	for i := 1; i <= towerCount; i++ {
		name := fmt.Sprintf("T%02d", i)
		if _, ok := present[name]; !ok {
			missing = append(missing, ledger.Tower{Name: name})
		}
	}

	if len(missing) == 0 {
		log.Println("All towers already exist")
		return nil
	}
	if err := db.DB.Create(&missing).Error; err != nil {
		return err
	}
	log.Printf("Created %d towers", len(missing))
	return nil
}

// SeedFundLocks pre-creates the lock row for every (category, scope) pool so
// the recorder's FOR UPDATE always finds one: a condominium lock per tower and
// the single global waste-fund lock.
func SeedFundLocks() error {
	var towers []ledger.Tower
	if err := db.DB.Find(&towers).Error; err != nil {
		return err
	}

	for _, t := range towers {
		lock := ledger.FundLock{Category: ledger.Condominium, TowerID: t.ID}
		if err := db.DB.Where("category = ? AND tower_id = ?", ledger.Condominium, t.ID).
			FirstOrCreate(&lock).Error; err != nil {
			return err
		}
	}

	global := ledger.FundLock{Category: ledger.WasteFund, TowerID: 0}
	return db.DB.Where("category = ? AND tower_id = ?", ledger.WasteFund, 0).
		FirstOrCreate(&global).Error
}

type bootstrapConfig struct {
	Admin struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"admin"`
}

// SeedAdmin creates the first general-leader account from an optional YAML
// bootstrap file. Missing file or already-existing username are both no-ops.
func SeedAdmin(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var cfg bootstrapConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Admin.Username == "" || cfg.Admin.Password == "" {
		return fmt.Errorf("%s: admin.username and admin.password are required", path)
	}

	var existing auth.User
	if err := db.DB.First(&existing, "username = ?", cfg.Admin.Username).Error; err == nil {
		log.Printf("Admin user %q already exists", cfg.Admin.Username)
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := auth.User{
		UserID:         uuid.New().String(),
		Username:       cfg.Admin.Username,
		HashedPassword: string(hashed),
		Role:           auth.RoleGeneralLeader,
		Staff:          true,
	}
	if err := db.DB.Create(&admin).Error; err != nil {
		return err
	}
	log.Printf("Created admin user %q", cfg.Admin.Username)
	return nil
}
