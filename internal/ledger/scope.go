package ledger

// Actor is what the ledger needs to know about the acting user. Built by the
// HTTP layer from the auth record; CreatedBy audit stamps use UserID only.
type Actor struct {
	UserID     string
	Role       string // "LDT" or "LDG"
	Staff      bool
	WasteAdmin bool
	TowerID    *uint
}

const (
	roleTowerLeader   = "LDT"
	roleGeneralLeader = "LDG"
)

// general reports whether the actor has general-leader authority.
func (a Actor) general() bool {
	return a.Role == roleGeneralLeader || a.Staff
}

// Resolution is the outcome of scope resolution: the scope whose balance the
// write is checked against, and the tower stamped on the movement row (which
// for pooled waste expenses is advisory attribution only).
type Resolution struct {
	Scope   Scope
	TowerID *uint
}

// ResolveScope is the single authorization and scope decision point for every
// write path. explicitTower is a caller-supplied tower, only meaningful for
// roles not bound to one.
func ResolveScope(actor Actor, category Category, movType MovementType, explicitTower *uint) (Resolution, error) {
	if !category.Valid() || !movType.Valid() {
		return Resolution{}, ErrInvalidMovement
	}

	switch category {
	case Condominium:
		return resolveCondominium(actor, explicitTower)
	default:
		return resolveWasteFund(actor, movType, explicitTower)
	}
}

// Condominium ledgers are strictly per-tower: tower leaders write only to
// their own tower, general leaders and staff must name one.
func resolveCondominium(actor Actor, explicitTower *uint) (Resolution, error) {
	if actor.general() {
		if explicitTower == nil {
			return Resolution{}, &ScopeError{Reason: "a tower is required for condominium movements"}
		}
		return Resolution{Scope: TowerScope(*explicitTower), TowerID: explicitTower}, nil
	}

	if actor.Role != roleTowerLeader {
		return Resolution{}, ErrUnauthorized
	}
	if actor.TowerID == nil {
		return Resolution{}, &ScopeError{Reason: "no tower assigned to this leader"}
	}
	if explicitTower != nil && *explicitTower != *actor.TowerID {
		return Resolution{}, &ScopeError{Reason: "tower leaders may only write to their own tower"}
	}
	return Resolution{Scope: TowerScope(*actor.TowerID), TowerID: actor.TowerID}, nil
}

// Waste-fund income is attributed per tower; waste-fund expenses always draw
// against the single global pool, whichever tower files them.
func resolveWasteFund(actor Actor, movType MovementType, explicitTower *uint) (Resolution, error) {
	if movType == Expense {
		tower := explicitTower
		switch {
		case actor.general(), actor.WasteAdmin:
			// Any supplied tower is kept as attribution only.
		case actor.Role == roleTowerLeader:
			if tower == nil {
				tower = actor.TowerID
			}
		default:
			return Resolution{}, ErrUnauthorized
		}
		return Resolution{Scope: Global, TowerID: tower}, nil
	}

	// Income.
	if actor.general() {
		scope := Global
		if explicitTower != nil {
			scope = TowerScope(*explicitTower)
		}
		return Resolution{Scope: scope, TowerID: explicitTower}, nil
	}
	if actor.Role != roleTowerLeader {
		return Resolution{}, ErrUnauthorized
	}
	if actor.TowerID == nil {
		return Resolution{}, &ScopeError{Reason: "no tower assigned to this leader"}
	}
	if explicitTower != nil && *explicitTower != *actor.TowerID {
		return Resolution{}, &ScopeError{Reason: "tower leaders may only write to their own tower"}
	}
	return Resolution{Scope: TowerScope(*actor.TowerID), TowerID: actor.TowerID}, nil
}

// scopeForMovement gives the balance scope a committed movement counts
// against, used when deleting rows.
func scopeForMovement(m *Movement) Scope {
	if m.Category == WasteFund {
		return Global
	}
	if m.TowerID != nil {
		return TowerScope(*m.TowerID)
	}
	return Global
}
