package server

import "github.com/nedpals/davi-nfc-cards/buildinfo"

// mDNS service discovery constants
var (
	MDNSServiceType = "_nfc-cards._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// DefaultPort is the HTTP/WebSocket port used when none is configured.
const DefaultPort = 18090

// API routes
const (
	RouteHealth    = "/api/v1/health"
	RouteCards     = "/api/v1/cards"
	RouteWebSocket = "/ws"
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)
