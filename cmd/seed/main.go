package main

import (
	"log"

	"github.com/BalconesDeParaguana/BP-Backend/internal/auth"
	"github.com/BalconesDeParaguana/BP-Backend/internal/db"
	"github.com/BalconesDeParaguana/BP-Backend/internal/ledger"
	"github.com/BalconesDeParaguana/BP-Backend/internal/seeds"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env.local")
	db.Connect()

	auth.Init()
	ledger.Init()

	if err := seeds.SeedAll(); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Println("Seeding complete")
}
