// ledger-export dumps a filtered running ledger as CSV, straight over SQL so
// it can run against production without booting the app. The web UI's report
// download covers the common case; this tool exists for backups and audits.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	dsn       = flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (default: env DATABASE_URL)")
	categoria = flag.String("categoria", "condominio", "Category slug: condominio or basura")
	torre     = flag.Int("torre", 0, "Tower id filter (0 = all towers)")
	desde     = flag.String("desde", "", "Start date YYYY-MM-DD (inclusive)")
	hasta     = flag.String("hasta", "", "End date YYYY-MM-DD (inclusive)")
	out       = flag.String("o", "", "Output file (default: stdout)")
)

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()

	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	var catDB, amountCol string
	switch *categoria {
	case "condominio":
		catDB, amountCol = "CON", "amount_condominium"
	case "basura":
		catDB, amountCol = "BAS", "amount_waste"
	default:
		fatalf("unknown categoria %q", *categoria)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fatalf("ping: %v", err)
	}

	query := `
		SELECT m.date, COALESCE(t.name, 'General'), m.description, m.type,
		       m.exchange_rate::text, m.` + amountCol + `::text
		FROM ledger.movements m
		LEFT JOIN ledger.towers t ON t.id = m.tower_id
		WHERE m.category = $1`
	args := []interface{}{catDB}

	if *torre != 0 {
		args = append(args, *torre)
		query += fmt.Sprintf(" AND m.tower_id = $%d", len(args))
	}
	if *desde != "" {
		args = append(args, mustDate(*desde))
		query += fmt.Sprintf(" AND m.date >= $%d", len(args))
	}
	if *hasta != "" {
		args = append(args, mustDate(*hasta))
		query += fmt.Sprintf(" AND m.date <= $%d", len(args))
	}
	query += " ORDER BY m.date, m.id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		fatalf("query: %v", err)
	}
	defer rows.Close()

	var dst io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fatalf("create %s: %v", *out, err)
		}
		defer f.Close()
		dst = f
	}

	w := csv.NewWriter(dst)
	_ = w.Write([]string{"fecha", "torre", "descripcion", "tasa_bcv", "ingreso", "egreso", "saldo"})

	running := decimal.Zero
	count := 0
	for rows.Next() {
		var date time.Time
		var tower, description, movType, rateStr, amountStr string
		if err := rows.Scan(&date, &tower, &description, &movType, &rateStr, &amountStr); err != nil {
			fatalf("scan: %v", err)
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			fatalf("bad amount %q: %v", amountStr, err)
		}

		income, expense := "", ""
		if movType == "ING" {
			running = running.Add(amount)
			income = amount.StringFixed(2)
		} else {
			running = running.Sub(amount)
			expense = amount.StringFixed(2)
		}

		_ = w.Write([]string{
			date.Format("2006-01-02"),
			tower,
			description,
			rateStr,
			income,
			expense,
			running.StringFixed(2),
		})
		count++
	}
	if err := rows.Err(); err != nil {
		fatalf("rows: %v", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		fatalf("write csv: %v", err)
	}

	// es-VE style thousands separators for the console summary.
	p := message.NewPrinter(language.Spanish)
	final, _ := running.Float64()
	p.Fprintf(os.Stderr, "%d movimientos exportados. Saldo final: Bs. %.2f\n", count, final)
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		fatalf("bad date %q, expected YYYY-MM-DD", s)
	}
	return t
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
