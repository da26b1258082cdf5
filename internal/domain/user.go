package domain

// Role is the caller role asserted by the identity provider.
type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

var roleLevels = map[Role]int{
	RoleOwner: 1,
	RoleAdmin: 2,
}

// HasPermission reports whether r is at least minRole.
func (r Role) HasPermission(minRole Role) bool {
	return roleLevels[r] >= roleLevels[minRole] && roleLevels[r] > 0
}

// Owner is the authenticated caller on whose behalf an operation runs.
type Owner struct {
	UserID string
	Role   Role
}

// CanManage reports whether the owner may operate on a site owned by ownerID.
func (o Owner) CanManage(ownerID string) bool {
	if o.Role == RoleAdmin {
		return true
	}
	return o.UserID != "" && o.UserID == ownerID
}
