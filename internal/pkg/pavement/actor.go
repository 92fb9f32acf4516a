package pavement

//Role is the capability an authenticated actor holds
type Role string

const (
	RoleInspector Role = "inspector"
	RoleEngineer  Role = "engineer"
	RoleAdmin     Role = "admin"
)

//Actor is an already authenticated identity
type Actor struct {
	ID   string
	Role Role
}
