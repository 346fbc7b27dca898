package ws

import (
	"net/http"
	"os"

	"task_reminders/internal/registry"
	"task_reminders/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handle upgrades an authenticated request to a push channel and registers
// the connection. Token validation is the gate: unauthenticated attempts
// never touch the registry.
func Handle(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		userID, err := service.ParseJWT(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		allowedOrigin := os.Getenv("ALLOWED_ORIGIN")
		upgrader := websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			return
		}

		client := NewClient(userID, uuid.NewString(), conn, reg)
		reg.Add(client.UserID, client.ConnID, client)
		go client.Run()
	}
}
