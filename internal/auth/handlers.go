package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/BalconesDeParaguana/BP-Backend/internal/db"
	"github.com/BalconesDeParaguana/BP-Backend/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const sessionTTL = 6 * time.Hour

// sessionCookie builds the session cookie. When PORT is set we assume a real
// deployment behind HTTPS; locally (httptest included) we fall back to Lax over
// plain HTTP so the cookie round-trips.
func sessionCookie(value string, maxAge int) *http.Cookie {
	prod := os.Getenv("PORT") != ""
	cookie := &http.Cookie{
		Name:     "session_id",
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
	}
	if prod {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	} else {
		cookie.Secure = false
		cookie.SameSite = http.SameSiteLaxMode
	}
	return cookie
}

func RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var user User

	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if user.Username == "" || user.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	// Check if username is taken
	var existing User
	if err := db.DB.First(&existing, "username = ?", user.Username).Error; err == nil {
		http.Error(w, "Username already taken", http.StatusConflict)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Server error hashing password", http.StatusInternalServerError)
		return
	}
	user.HashedPassword = string(hashed)
	user.UserID = uuid.New().String()
	user.Password = ""

	// Self-registration always starts as a plain tower leader with nothing
	// assigned; a general leader grants roles and towers afterwards.
	user.Role = RoleTowerLeader
	user.Staff = false
	user.TowerID = nil
	user.Permissions = nil

	if err := db.DB.Create(&user).Error; err != nil {
		http.Error(w, "Failed to register user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"user_id":  user.UserID,
		"username": user.Username,
	})
}

func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds User

	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Invalid data", http.StatusBadRequest)
		return
	}

	var user User
	if err := db.DB.First(&user, "username = ?", creds.Username).Error; err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(creds.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	sessionID := uuid.New().String()
	expiresAt := time.Now().Add(sessionTTL)

	// One session per user: replace the existing row if there is one. The
	// cookie is only set once the row is committed, so the client never holds
	// a session id the database doesn't know.
	var existing Session
	err := db.DB.Where("user_id = ?", user.UserID).First(&existing).Error
	switch {
	case err == nil:
		err = db.DB.Model(&existing).Updates(Session{
			SessionID: sessionID,
			ExpiresAt: expiresAt,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = db.DB.Create(&Session{
			SessionID: sessionID,
			UserID:    user.UserID,
			ExpiresAt: expiresAt,
		}).Error
	}
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, sessionCookie(sessionID, int(sessionTTL.Seconds())))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"user_id": user.UserID})
}

func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	var session Session

	cookie, err := r.Cookie("session_id")
	if err != nil {
		http.Error(w, "Couldn't find cookie", http.StatusUnauthorized)
		return
	}

	if err := db.DB.First(&session, "session_id = ?", cookie.Value).Error; err != nil {
		http.Error(w, "Couldn't find session", http.StatusUnauthorized)
		return
	}

	db.DB.Delete(&session)
	http.SetCookie(w, sessionCookie("", -1))
	w.WriteHeader(http.StatusOK)
}

func MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user ID in context", http.StatusUnauthorized)
		return
	}

	var user User
	if err := db.DB.First(&user, "user_id = ?", userID).Error; err != nil {
		http.Error(w, "Couldn't find user", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func UpdatePasswordHandler(w http.ResponseWriter, r *http.Request) {
	type updatePassword struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}

	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user ID in context", http.StatusUnauthorized)
		return
	}

	var user User
	if err := db.DB.First(&user, "user_id = ?", userID).Error; err != nil {
		http.Error(w, "Couldn't find user", http.StatusUnauthorized)
		return
	}

	var body updatePassword
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CurrentPassword == "" || body.NewPassword == "" {
		http.Error(w, "Current and new password are required", http.StatusBadRequest)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(body.CurrentPassword)); err != nil {
		http.Error(w, "Invalid current password", http.StatusUnauthorized)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(body.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Server error hashing password", http.StatusInternalServerError)
		return
	}

	if err := db.DB.Model(&user).Update("hashed_password", string(hashed)).Error; err != nil {
		http.Error(w, "Failed to update password", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// requireGeneralLeader loads the acting user and rejects anyone who is not a
// general leader or staff. User administration is their surface alone.
func requireGeneralLeader(w http.ResponseWriter, r *http.Request) (*User, bool) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user ID in context", http.StatusUnauthorized)
		return nil, false
	}

	var actor User
	if err := db.DB.First(&actor, "user_id = ?", userID).Error; err != nil {
		http.Error(w, "Unauthorized: user not found", http.StatusUnauthorized)
		return nil, false
	}

	if actor.Role != RoleGeneralLeader && !actor.Staff {
		http.Error(w, "Forbidden: general leader access required", http.StatusForbidden)
		return nil, false
	}
	return &actor, true
}

func ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireGeneralLeader(w, r); !ok {
		return
	}

	var users []User
	if err := db.DB.Order("username").Find(&users).Error; err != nil {
		http.Error(w, "Failed to fetch users: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

// UpdateUserHandler lets a general leader assign role, tower and secondary
// permissions. Passwords are never touched here.
func UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireGeneralLeader(w, r); !ok {
		return
	}

	type updateUser struct {
		Role        *string  `json:"role"`
		Staff       *bool    `json:"staff"`
		TowerID     *uint    `json:"tower_id"`
		Permissions []string `json:"permissions"`
	}

	targetID := chi.URLParam(r, "user_id")

	var user User
	if err := db.DB.First(&user, "user_id = ?", targetID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	var body updateUser
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if body.Role != nil {
		if *body.Role != RoleTowerLeader && *body.Role != RoleGeneralLeader {
			http.Error(w, "Invalid role", http.StatusBadRequest)
			return
		}
		user.Role = *body.Role
	}
	if body.Staff != nil {
		user.Staff = *body.Staff
	}
	if body.TowerID != nil {
		var count int64
		if err := db.DB.Table("ledger.towers").Where("id = ?", *body.TowerID).Count(&count).Error; err != nil || count == 0 {
			http.Error(w, "Tower not found", http.StatusBadRequest)
			return
		}
		user.TowerID = body.TowerID
	}
	if body.Permissions != nil {
		user.Permissions = body.Permissions
	}

	if err := db.DB.Save(&user).Error; err != nil {
		http.Error(w, "Failed to update user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}
