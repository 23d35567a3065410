package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// Connection lifecycle
	s.RegisterRouteHandler("GET "+RouteConnect, ChainMiddleware(s.ConnectHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...)) // For form_post response mode
	s.RegisterRouteHandler("POST "+RouteDisconnect, ChainMiddleware(s.DisconnectHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteStatus, ChainMiddleware(s.StatusHandler(), s.APIMiddleware()...))

	// Tenants
	s.RegisterRouteHandler("GET "+RouteTenants, ChainMiddleware(s.TenantsHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteTenantSelect, ChainMiddleware(s.SelectTenantHandler(), s.APIMiddleware()...))

	// Resource sync
	s.RegisterRouteHandler("GET "+RouteResources, ChainMiddleware(s.ResourcesHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLoadAll, ChainMiddleware(s.LoadAllHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLoadOne, ChainMiddleware(s.LoadOneHandler(), s.APIMiddleware()...))

	// Notifications
	s.RegisterRouteHandler("GET "+RouteNotifications, ChainMiddleware(s.NotificationsHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteNotificationDelete, ChainMiddleware(s.DismissNotificationHandler(), s.APIMiddleware()...))

	// Preflight
	s.RegisterRouteHandler("OPTIONS /integration/", ChainMiddleware(noContent, s.APIMiddleware()...))
}
