package users

import "time"

type Role string

const (
	RoleSystemAdmin      Role = "system_admin"
	RoleInventoryManager Role = "inventory_manager"
	RoleRegular          Role = "regular_user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystemAdmin, RoleInventoryManager, RoleRegular:
		return true
	}
	return false
}

// CanApprove reports whether the role may decide inventory transactions and run stocktaking.
func (r Role) CanApprove() bool {
	return r == RoleSystemAdmin || r == RoleInventoryManager
}

// ApproverRoles are notified about new pending transactions.
var ApproverRoles = []Role{RoleInventoryManager, RoleSystemAdmin}

type User struct {
	ID         int64
	Username   string
	RealName   string
	Role       Role
	TelegramID *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type New struct {
	Username   string
	RealName   string
	Role       Role
	TelegramID *int64
}
