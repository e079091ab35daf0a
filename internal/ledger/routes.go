package ledger

import (
	"net/http"

	"github.com/BalconesDeParaguana/BP-Backend/internal/auth"
	"github.com/BalconesDeParaguana/BP-Backend/internal/middleware"
	"github.com/go-chi/chi/v5"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()
	sessionFetcher := auth.SessionInfo{}

	// Public routes - residents browse towers and closed monthly reports
	r.Get("/towers", ListTowersHandler)
	r.Get("/{category}/reports", ListReportsHandler)

	// Leader routes - require a session; fine-grained authorization lives in
	// the scope resolver and the publisher's permission matrix
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(sessionFetcher))

		r.Get("/{category}/movements", ListMovementsHandler)
		r.Post("/{category}/movements", RecordMovementHandler)
		r.Get("/{category}/balance", BalanceHandler)

		r.Post("/reports", PublishReportHandler)
		r.Delete("/reports/{report_id}", DeleteReportHandler)
	})

	// Staff routes - administrative corrections
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(sessionFetcher))
		r.Use(middleware.StaffMiddleware(sessionFetcher))

		r.Delete("/movements/{movement_id}", DeleteMovementHandler)
	})

	return r
}
