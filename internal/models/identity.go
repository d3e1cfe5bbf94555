package models

// Role - роль субъекта, подтвержденная внешней авторизацией
type Role string

const (
	RoleTourist   Role = "tourist"
	RoleResponder Role = "responder"
	RoleOperator  Role = "operator"
	RoleAdmin     Role = "admin"
)

// Identity - проверенная личность, предъявившая токен
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// CanCloseAnyIncident - операторы и администраторы закрывают инциденты без закрепления
func (id Identity) CanCloseAnyIncident() bool {
	return id.Role == RoleOperator || id.Role == RoleAdmin
}
