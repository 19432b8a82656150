// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes. The 4xxx range is reserved for application
// use, mirroring HTTP status semantics where possible.
const (
	CloseAuthFailed        websocket.StatusCode = 4401 // no valid session token, initData, or dev credential
	CloseInternalAuthError websocket.StatusCode = 4500 // auth machinery itself failed (DB down, etc.)
)
