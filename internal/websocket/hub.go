// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	"worksuite-service/internal/domain/notification"
	wstypes "worksuite-service/internal/domain/websocket"
	"worksuite-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

// TokenValidator authenticates connection tokens. Satisfied by the auth
// service so websocket connections go through the same blacklist and
// session checks as HTTP requests.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

type Hub struct {
	// Registered clients by user ID
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client

	broadcast chan *BroadcastMessage

	validator TokenValidator
	logger    *zap.Logger
}

type BroadcastMessage struct {
	UserIDs []int64
	Message *wstypes.WSMessage
}

func NewHub(validator TokenValidator, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		validator:  validator,
		logger:     logger,
	}
}

// AuthenticateClient validates the session token for a new connection.
func (h *Hub) AuthenticateClient(ctx context.Context, token string) (*ClientAuth, error) {
	claims, err := h.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	return &ClientAuth{
		UserID: claims.UserID,
		Token:  claims.ID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true

	h.logger.Info("websocket client connected",
		zap.Int64("user_id", client.userID),
		zap.String("client_id", client.id),
		zap.Int("total", h.totalClients()))

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"client_id": client.id,
		"user_id":   client.userID,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.userID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.userID)
			}

			h.logger.Info("websocket client disconnected",
				zap.Int64("user_id", client.userID),
				zap.String("client_id", client.id),
				zap.Int("total", h.totalClients()))
		}
	}
}

func (h *Hub) deliver(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.UserIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				client.SendMessage(msg.Message)
			}
		}
		return
	}

	for _, userID := range msg.UserIDs {
		if clients, ok := h.clients[userID]; ok {
			for client := range clients {
				client.SendMessage(msg.Message)
			}
		}
	}
}

// PushNotification delivers a notification to the user's open tabs.
func (h *Hub) PushNotification(userID int64, n *notification.Notification) {
	h.broadcast <- &BroadcastMessage{
		UserIDs: []int64{userID},
		Message: wstypes.NewMessage(wstypes.EventTypeNotification, n),
	}
}

// PushNotificationCount updates the unread badge.
func (h *Hub) PushNotificationCount(userID int64, count int64) {
	h.broadcast <- &BroadcastMessage{
		UserIDs: []int64{userID},
		Message: wstypes.NewMessage(wstypes.EventTypeNotificationCount, map[string]interface{}{
			"unread_count": count,
		}),
	}
}

// ForceLogoutUser tells every connection of the user to sign out, except
// connections carrying exceptToken (pass "" for all). The connections
// are closed after the message is sent.
func (h *Hub) ForceLogoutUser(userID int64, exceptToken string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[userID]
	if !ok {
		return
	}

	msg := wstypes.NewMessage(wstypes.EventTypeForceLogout, map[string]interface{}{
		"reason": "session revoked",
	})

	for client := range clients {
		if exceptToken != "" && client.token == exceptToken {
			continue
		}
		client.SendMessage(msg)
		client.Close()
		delete(clients, client)
	}
	if len(clients) == 0 {
		delete(h.clients, userID)
	}

	h.logger.Info("force logout pushed", zap.Int64("user_id", userID))
}

// ForceLogoutSession disconnects the connections of one session.
func (h *Hub) ForceLogoutSession(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := wstypes.NewMessage(wstypes.EventTypeSessionRevoked, map[string]interface{}{
		"reason": "session revoked",
	})

	for userID, clients := range h.clients {
		for client := range clients {
			if client.token != token {
				continue
			}
			client.SendMessage(msg)
			client.Close()
			delete(clients, client)
		}
		if len(clients) == 0 {
			delete(h.clients, userID)
		}
	}
}

// ConnectedClients reports how many connections a user has open.
func (h *Hub) ConnectedClients(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// TotalClients reports the number of open connections.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
}
