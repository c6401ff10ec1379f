// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room handler. These provide more
// specific reasons for closure than standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidRoomTokenError = 3001 // Provided room token was invalid or expired.
	InvalidRoomCodeError  = 3002 // Target room code in the WS URL does not exist.
)
