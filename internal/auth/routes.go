package auth

import (
	"net/http"
	"time"

	"github.com/BalconesDeParaguana/BP-Backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()
	sessionFetcher := SessionInfo{}

	// 10 login attempts per minute per IP, small burst.
	loginLimiter := middleware.NewRateLimiter(rate.Every(6*time.Second), 5)

	r.Post("/register", RegisterHandler)
	r.With(loginLimiter.Middleware).Post("/login", LoginHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(sessionFetcher))

		r.Post("/logout", LogoutHandler)
		r.Get("/me", MeHandler)
		r.Post("/update-password", UpdatePasswordHandler)

		r.Get("/users", ListUsersHandler)
		r.Put("/users/{user_id}", UpdateUserHandler)
	})

	return r
}
