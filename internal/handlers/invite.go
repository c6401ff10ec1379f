// internal/handlers/invite.go
package handlers

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// InviteQRHandler serves a PNG QR code encoding the join link for a room.
// The link expires with the room's invite window; afterwards the endpoint
// answers 410 so stale posters on screens stop scanning into dead rooms.
func InviteQRHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/rooms/invite/"), ".png")
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		_, expiresAt, ok := s.Orch.RoomInvite(code)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		if s.clock.Now().After(expiresAt) {
			http.Error(w, "invite link expired", http.StatusGone)
			return
		}

		base := os.Getenv("PUBLIC_URL")
		if base == "" {
			base = "http://localhost:8080"
		}
		link := fmt.Sprintf("%s/join/%s", strings.TrimSuffix(base, "/"), code)

		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			s.logger.Warnf("qr encode failed for room %s: %v", code, err)
			http.Error(w, "failed to render qr code", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}
}
