package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/BalconesDeParaguana/BP-Backend/internal/auth"
	"github.com/BalconesDeParaguana/BP-Backend/internal/db"
	"github.com/BalconesDeParaguana/BP-Backend/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// actorFromRequest loads the acting user set by the session middleware and
// flattens it into a ledger actor.
func actorFromRequest(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user ID in context", http.StatusUnauthorized)
		return Actor{}, false
	}

	var user auth.User
	if err := db.DB.First(&user, "user_id = ?", userID).Error; err != nil {
		http.Error(w, "Unauthorized: user not found", http.StatusUnauthorized)
		return Actor{}, false
	}

	return Actor{
		UserID:     user.UserID,
		Role:       user.Role,
		Staff:      user.Staff,
		WasteAdmin: user.HasPermission(auth.PermWasteAdmin),
		TowerID:    user.TowerID,
	}, true
}

// writeLedgerError maps domain errors onto HTTP statuses. Insufficient funds
// answers 409 with the live balance so the operator sees how short they fell.
func writeLedgerError(w http.ResponseWriter, err error) {
	var amountErr *AmountError
	var periodErr *PeriodError
	var scopeErr *ScopeError
	var fundsErr *InsufficientFundsError

	switch {
	case errors.As(err, &amountErr):
		http.Error(w, amountErr.Error(), http.StatusBadRequest)
	case errors.As(err, &periodErr):
		http.Error(w, periodErr.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInvalidMovement):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &scopeErr):
		http.Error(w, scopeErr.Error(), http.StatusForbidden)
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.As(err, &fundsErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":           "insufficient funds",
			"current_balance": fundsErr.Balance,
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		http.Error(w, "Storage error: "+err.Error(), http.StatusInternalServerError)
	}
}

func categoryFromURL(w http.ResponseWriter, r *http.Request) (Category, bool) {
	category, ok := CategoryFromSlug(chi.URLParam(r, "category"))
	if !ok {
		http.Error(w, "Unknown category", http.StatusNotFound)
		return "", false
	}
	return category, true
}

// ListTowersHandler returns the seeded towers, name-ordered. Public.
func ListTowersHandler(w http.ResponseWriter, r *http.Request) {
	var towers []Tower
	if err := db.DB.Order("name").Find(&towers).Error; err != nil {
		http.Error(w, "Failed to fetch towers: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(towers)
}

// ListMovementsHandler returns the running ledger for a category, filtered by
// type, tower and date range. Tower leaders are pinned to their own tower.
func ListMovementsHandler(w http.ResponseWriter, r *http.Request) {
	category, ok := categoryFromURL(w, r)
	if !ok {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	filter := Filter{Category: category}

	switch r.URL.Query().Get("tipo") {
	case "INGRESOS":
		t := Income
		filter.Type = &t
	case "EGRESOS":
		t := Expense
		filter.Type = &t
	}

	if !actor.general() {
		if actor.TowerID == nil {
			http.Error(w, "No tower assigned to this leader", http.StatusForbidden)
			return
		}
		filter.TowerID = actor.TowerID
	} else if torre := r.URL.Query().Get("torre"); torre != "" && torre != "0" {
		id, err := strconv.ParseUint(torre, 10, 32)
		if err != nil {
			http.Error(w, "Invalid tower id", http.StatusBadRequest)
			return
		}
		towerID := uint(id)
		filter.TowerID = &towerID
	}

	if desde := r.URL.Query().Get("desde"); desde != "" {
		from, err := time.Parse(dateLayout, desde)
		if err != nil {
			http.Error(w, "Invalid desde date", http.StatusBadRequest)
			return
		}
		filter.From = &from
	}
	if hasta := r.URL.Query().Get("hasta"); hasta != "" {
		to, err := time.Parse(dateLayout, hasta)
		if err != nil {
			http.Error(w, "Invalid hasta date", http.StatusBadRequest)
			return
		}
		filter.To = &to
	}

	entries, err := Fetch(db.DB, filter)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	final := decimal.Zero
	if len(entries) > 0 {
		final = entries[len(entries)-1].RunningBalance
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"movements":     entries,
		"final_balance": final,
	})
}

// RecordMovementHandler registers a new movement in the URL's category.
func RecordMovementHandler(w http.ResponseWriter, r *http.Request) {
	category, ok := categoryFromURL(w, r)
	if !ok {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var body struct {
		Fecha       string          `json:"fecha"`
		Descripcion string          `json:"descripcion"`
		Tipo        MovementType    `json:"tipo"`
		TasaBCV     decimal.Decimal `json:"tasa_bcv"`
		Monto       decimal.Decimal `json:"monto"`
		TowerID     *uint           `json:"tower_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	date, err := time.Parse(dateLayout, body.Fecha)
	if err != nil {
		http.Error(w, "Invalid fecha, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if body.Descripcion == "" {
		http.Error(w, "Descripcion is required", http.StatusBadRequest)
		return
	}

	mov, err := Record(db.DB, actor, Draft{
		Date:         date,
		Description:  body.Descripcion,
		Type:         body.Tipo,
		Category:     category,
		ExchangeRate: body.TasaBCV,
		Amount:       body.Monto,
		TowerID:      body.TowerID,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(mov)
}

// BalanceHandler answers the current (or as-of) balance for one scope.
func BalanceHandler(w http.ResponseWriter, r *http.Request) {
	category, ok := categoryFromURL(w, r)
	if !ok {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	scope := Global
	if !actor.general() && category == Condominium {
		if actor.TowerID == nil {
			http.Error(w, "No tower assigned to this leader", http.StatusForbidden)
			return
		}
		scope = TowerScope(*actor.TowerID)
	} else if torre := r.URL.Query().Get("torre"); torre != "" && torre != "0" {
		id, err := strconv.ParseUint(torre, 10, 32)
		if err != nil {
			http.Error(w, "Invalid tower id", http.StatusBadRequest)
			return
		}
		scope = TowerScope(uint(id))
	} else if category == Condominium {
		http.Error(w, "A tower is required for condominium balances", http.StatusBadRequest)
		return
	}

	var asOf *time.Time
	if hasta := r.URL.Query().Get("hasta"); hasta != "" {
		t, err := time.Parse(dateLayout, hasta)
		if err != nil {
			http.Error(w, "Invalid hasta date", http.StatusBadRequest)
			return
		}
		asOf = &t
	}

	balance, err := Balance(db.DB, scope, category, asOf)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"category": category.Slug(),
		"tower_id": scope.TowerID,
		"balance":  balance,
	})
}

// ListReportsHandler lists published snapshots for a category, newest period
// first. Public: residents check the closed months here.
func ListReportsHandler(w http.ResponseWriter, r *http.Request) {
	category, ok := categoryFromURL(w, r)
	if !ok {
		return
	}

	q := db.DB.Model(&PublishedReport{}).Where("category = ?", category).Preload("Tower")

	if torre := r.URL.Query().Get("torre"); torre != "" {
		if torre == "general" {
			q = q.Where("tower_id IS NULL")
		} else if id, err := strconv.ParseUint(torre, 10, 32); err == nil {
			q = q.Where("tower_id = ?", uint(id))
		}
	}
	if mes := r.URL.Query().Get("mes"); mes != "" {
		if m, err := strconv.Atoi(mes); err == nil {
			q = q.Where("month = ?", m)
		}
	}
	if anio := r.URL.Query().Get("anio"); anio != "" {
		if y, err := strconv.Atoi(anio); err == nil {
			q = q.Where("year = ?", y)
		}
	}

	var reports []PublishedReport
	if err := q.Order("year DESC, month DESC").Find(&reports).Error; err != nil {
		http.Error(w, "Failed to fetch reports: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reports)
}

// PublishReportHandler freezes a monthly snapshot (idempotent upsert).
func PublishReportHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var body struct {
		Mes         int    `json:"mes"`
		Anio        int    `json:"anio"`
		Categoria   string `json:"categoria"`
		TowerID     *uint  `json:"tower_id"`
		ArtifactRef string `json:"artifact_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	category, ok := CategoryFromSlug(body.Categoria)
	if !ok {
		http.Error(w, "Unknown category", http.StatusBadRequest)
		return
	}

	report, err := Publish(db.DB, actor, PublishInput{
		Month:       body.Mes,
		Year:        body.Anio,
		Category:    category,
		TowerID:     body.TowerID,
		ArtifactRef: body.ArtifactRef,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(report)
}

// DeleteReportHandler removes a published snapshot, permission matrix applied.
func DeleteReportHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseUint(chi.URLParam(r, "report_id"), 10, 32)
	if err != nil {
		http.Error(w, "Invalid report id", http.StatusBadRequest)
		return
	}

	if err := DeleteReport(db.DB, actor, uint(id)); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteMovementHandler removes a movement (staff only, invariant-checked).
func DeleteMovementHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseUint(chi.URLParam(r, "movement_id"), 10, 32)
	if err != nil {
		http.Error(w, "Invalid movement id", http.StatusBadRequest)
		return
	}

	if err := DeleteMovement(db.DB, actor, uint(id)); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
