package tenants

// Tenant is an organisation on the accounting platform the authorized user can access.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
