// Package api is the HTTP surface of the intercom access service.
//
// All routes live under /api. Callers authenticate with an HS256 bearer
// token whose subject is the numeric user id and whose role claim is one of
// the auth roles. The verify route is anonymous: intercom devices call it
// and always receive 200 with a granted flag.
//
// Super Admins can follow verification outcomes live on a WebSocket at
// /api/access/events/ws.
//
// Lifecycle:
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package api
