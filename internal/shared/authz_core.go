package shared

// Ledger permissions.
const (
	PermDeliveriesPost = "deliveries.post"
	PermIssuesPost     = "issues.post"
	PermTransfersReq   = "transfers.request"
	PermPeriodsManage  = "periods.manage"
	PermPeriodsClose   = "periods.close"
	PermReconcile      = "reconciliation.edit"
	PermNCRManage      = "ncr.manage"
	PermApprovalDecide = "approvals.decide"
)

// Roles known to the default authorizer.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleOperator   = "operator"
)

// Authorizer decides whether an actor holds a permission.
type Authorizer interface {
	Allowed(actor Actor, perm string) bool
}

// RoleAuthorizer grants permissions by role name.
type RoleAuthorizer map[string][]string

// DefaultRoles grants decisions only to elevated roles.
func DefaultRoles() RoleAuthorizer {
	operator := []string{PermDeliveriesPost, PermIssuesPost, PermTransfersReq, PermReconcile, PermNCRManage}
	supervisor := append([]string{PermPeriodsManage, PermApprovalDecide}, operator...)
	admin := append([]string{PermPeriodsClose}, supervisor...)
	return RoleAuthorizer{
		RoleOperator:   operator,
		RoleSupervisor: supervisor,
		RoleAdmin:      admin,
	}
}

// Allowed implements Authorizer.
func (r RoleAuthorizer) Allowed(actor Actor, perm string) bool {
	if !actor.Valid() {
		return false
	}
	for _, p := range r[actor.Role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Require returns a PermissionError when the actor lacks perm.
func Require(authz Authorizer, actor Actor, perm string) error {
	if authz == nil || authz.Allowed(actor, perm) {
		return nil
	}
	return PermissionDenied(actor, perm)
}
