package handlers

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mezaapp/meza/internal/models"
	jwtutil "github.com/mezaapp/meza/pkg/jwt"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NotificationStreamHandler holds the live notification connections and
// implements services.NotificationStreamer. One connection per user; a new
// connection replaces the old one.
type NotificationStreamHandler struct {
	JWTSecret string

	clientsMu sync.Mutex
	clients   map[string]*websocket.Conn
}

func NewNotificationStreamHandler(jwtSecret string) *NotificationStreamHandler {
	return &NotificationStreamHandler{
		JWTSecret: jwtSecret,
		clients:   make(map[string]*websocket.Conn),
	}
}

// Broadcast sends a notification to the user's live connection, if any.
// Best-effort: a write failure drops the connection.
func (h *NotificationStreamHandler) Broadcast(userID string, notif *models.Notification) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	conn, ok := h.clients[userID]
	if !ok {
		return
	}
	if err := conn.WriteJSON(notif); err != nil {
		logrus.WithError(err).WithField("userID", userID).Warn("Live notification write failed")
		conn.Close()
		delete(h.clients, userID)
	}
}

// StreamHandler upgrades the connection. Browsers cannot set headers on a
// websocket handshake, so the token travels as a query parameter.
func (h *NotificationStreamHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}
	claims, err := jwtutil.ValidateToken(token, h.JWTSecret)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket auth failed")
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	userID := claims.UserID

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	h.clientsMu.Lock()
	if old, ok := h.clients[userID]; ok {
		old.Close()
	}
	h.clients[userID] = conn
	h.clientsMu.Unlock()

	logrus.WithField("userID", userID).Info("Notification stream connected")

	defer func() {
		h.clientsMu.Lock()
		if h.clients[userID] == conn {
			delete(h.clients, userID)
		}
		h.clientsMu.Unlock()
		conn.Close()
		logrus.WithField("userID", userID).Info("Notification stream disconnected")
	}()

	// The stream is one-way; reads only detect the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
