package account

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDesigner Role = "designer"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleCustomer, RoleDesigner, RoleAdmin:
		return r, true
	}
	return "", false
}

// User mirrors the identity provider's account; only the role is managed here.
type User struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	Email     string    `gorm:"column:email;type:varchar(255);index" json:"email"`
	Name      string    `gorm:"column:name;type:varchar(255)" json:"name"`
	Role      Role      `gorm:"column:role;type:varchar(16);not null;default:customer" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func Models() []any {
	return []any{&User{}}
}
