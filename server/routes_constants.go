package server

// Route path constants
const (
	// Connection lifecycle
	RouteConnect    = "/integration/connect"
	RouteCallback   = "/integration/callback"
	RouteDisconnect = "/integration/disconnect"
	RouteStatus     = "/integration/status"

	// Tenants
	RouteTenants      = "/integration/tenants"
	RouteTenantSelect = "/integration/tenants/select"

	// Resource sync
	RouteResources = "/integration/resources"
	RouteLoadAll   = "/integration/resources/load"
	RouteLoadOne   = "/integration/resources/{key}/load"

	// Notifications
	RouteNotifications      = "/integration/notifications"
	RouteNotificationDelete = "/integration/notifications/{id}"

	RouteHealth = "/healthz"
)
