// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/jonboulle/clockwork"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/sagivamit/simon-game-app/internal/auth"
	"github.com/sagivamit/simon-game-app/internal/handlers"
	"github.com/sagivamit/simon-game-app/internal/middleware"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	srv := handlers.NewServer(logger, clockwork.NewRealClock())
	go srv.Orch.RunCleanup(context.Background())

	mux := http.NewServeMux()

	// room endpoints
	mux.Handle("/rooms/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateRoomHandler(srv),
	)))
	mux.Handle("/rooms/join", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.JoinRoomHandler(srv),
	)))
	mux.Handle("/rooms/invite/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.InviteQRHandler(srv),
	)))

	// room websocket
	mux.Handle("/rooms/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(logger, srv),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
