package handler

import (
	"data-explorer-be/internal/pkg/logger"
	"data-explorer-be/internal/pkg/serverutils"
	internalWS "data-explorer-be/internal/websocket"
	"data-explorer-be/pkg/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
)

// SessionStreamHandler streams turn progress of one session over a websocket.
type SessionStreamHandler struct {
	sessions  store.SessionStore
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewSessionStreamHandler(sessions store.SessionStore, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *SessionStreamHandler {
	return &SessionStreamHandler{
		sessions:  sessions,
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

func (h *SessionStreamHandler) RegisterRoutes(app fiber.Router) {
	app.Get("/ws/session/:id", h.ServeWs)
}

// ServeWs checks the session exists, then upgrades. Browsers cannot set
// headers on websocket requests, so the token may also come as ?token=.
func (h *SessionStreamHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	if h.jwtSecret != "" {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			authHeader := c.Get("Authorization")
			if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
				tokenStr = authHeader[7:]
			}
		}
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')"))
		}
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return []byte(h.jwtSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			h.logger.Warn("SessionStream", "Invalid Token in WS Handshake", map[string]interface{}{"error": err})
			return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}
	}

	sessionID := c.Params("id")
	if _, err := h.sessions.Get(c.UserContext(), sessionID); err != nil {
		return err
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("SessionStream", "Starting WebSocket session", map[string]interface{}{"session_id": sessionID})
		internalWS.ServeWs(h.hub, conn, sessionID)
		h.logger.Info("SessionStream", "WebSocket session ended", map[string]interface{}{"session_id": sessionID})
	})(c)
}
