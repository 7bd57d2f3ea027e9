package ledger

import "fmt"

// =============================================================================
// ROLES AND CAPABILITIES
// =============================================================================

type Role string

const (
	RoleRegular   Role = "regular"
	RoleCashier   Role = "cashier"
	RoleManager   Role = "manager"
	RoleSuperuser Role = "superuser"
)

func (r Role) rank() int {
	switch r {
	case RoleRegular:
		return 1
	case RoleCashier:
		return 2
	case RoleManager:
		return 3
	case RoleSuperuser:
		return 4
	}
	return 0
}

func (r Role) Valid() bool { return r.rank() > 0 }

// AtLeast reports whether r ranks at or above other.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r.rank() >= other.rank()
}

// Capability names a role-gated operation.
type Capability string

const (
	CapTransfer            Capability = "transfer"
	CapRedeem              Capability = "redeem"
	CapCreatePurchase      Capability = "create_purchase"
	CapRegisterUser        Capability = "register_user"
	CapProcessRedemption   Capability = "process_redemption"
	CapCreateAdjustment    Capability = "create_adjustment"
	CapMarkSuspicious      Capability = "mark_suspicious"
	CapViewAllTransactions Capability = "view_all_transactions"
	CapManageUsers         Capability = "manage_users"
	CapManagePromotions    Capability = "manage_promotions"
	CapManageEvents        Capability = "manage_events"
	CapAwardAnyEvent       Capability = "award_any_event"
	CapRunAudit            Capability = "run_audit"
)

// minimumRole is the lowest role holding each capability.
var minimumRole = map[Capability]Role{
	CapTransfer:            RoleRegular,
	CapRedeem:              RoleRegular,
	CapCreatePurchase:      RoleCashier,
	CapRegisterUser:        RoleCashier,
	CapProcessRedemption:   RoleCashier,
	CapCreateAdjustment:    RoleManager,
	CapMarkSuspicious:      RoleManager,
	CapViewAllTransactions: RoleManager,
	CapManageUsers:         RoleManager,
	CapManagePromotions:    RoleManager,
	CapManageEvents:        RoleManager,
	CapAwardAnyEvent:       RoleManager,
	CapRunAudit:            RoleManager,
}

func (r Role) Can(c Capability) bool {
	floor, ok := minimumRole[c]
	return ok && r.AtLeast(floor)
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID     int64
	Utorid string
	Role   Role
}

// Require returns ErrForbidden unless the actor's role holds c.
func (a Actor) Require(c Capability) error {
	if !a.Role.Can(c) {
		return fmt.Errorf("%w: role %q cannot %s", ErrForbidden, a.Role, c)
	}
	return nil
}
