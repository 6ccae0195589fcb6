package eventsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cliparino/cliparino/internal/event"
	"github.com/cliparino/cliparino/internal/token"
	"github.com/cliparino/cliparino/pkg/utils"
)

const (
	eventSubURL            = "wss://eventsub.wss.twitch.tv/ws"
	eventSubSubscribeURL   = "https://api.twitch.tv/helix/eventsub/subscriptions"
	welcomeTimeout         = 10 * time.Second
)

type eventSubMessageType string

const (
	messageTypeWelcome      eventSubMessageType = "session_welcome"
	messageTypeKeepalive    eventSubMessageType = "session_keepalive"
	messageTypeNotification eventSubMessageType = "notification"
	messageTypeReconnect    eventSubMessageType = "session_reconnect"
	messageTypeRevocation   eventSubMessageType = "revocation"
)

type eventSubMetadata struct {
	MessageType      eventSubMessageType `json:"message_type"`
	SubscriptionType string              `json:"subscription_type"`
}

type eventSubPayload struct {
	Session *struct {
		ID string `json:"id"`
	} `json:"session,omitempty"`
	Subscription *struct {
		Type string `json:"type"`
	} `json:"subscription,omitempty"`
	Event json.RawMessage `json:"event,omitempty"`
}

type eventSubMessage struct {
	Metadata eventSubMetadata `json:"metadata"`
	Payload  eventSubPayload  `json:"payload"`
}

type chatMessageEvent struct {
	ChatterUserLogin string `json:"chatter_user_login"`
	ChatterUserID    string `json:"chatter_user_id"`
	BroadcasterUserID string `json:"broadcaster_user_id"`
	Message          struct {
		Text string `json:"text"`
	} `json:"message"`
	Badges []struct {
		SetID string `json:"set_id"`
	} `json:"badges"`
}

type raidEvent struct {
	FromBroadcasterUserName string `json:"from_broadcaster_user_name"`
	ToBroadcasterUserName   string `json:"to_broadcaster_user_name"`
	Viewers                 int    `json:"viewers"`
}

// EventSubWS is the primary EventSource: a WebSocket connection to
// Twitch's EventSub service, normalizing notification frames into
// event.TwitchEvent.
type EventSubWS struct {
	clientID      string
	broadcasterID string
	tokens        token.Provider
	httpClient    *http.Client
	logger        *utils.StructuredLogger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// NewEventSubWS constructs an EventSubWS source for the given
// broadcaster.
func NewEventSubWS(clientID, broadcasterID string, tokens token.Provider, logger *utils.StructuredLogger) *EventSubWS {
	return &EventSubWS{
		clientID:      clientID,
		broadcasterID: broadcasterID,
		tokens:        tokens,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger.With("eventsub"),
	}
}

// Start implements Source.
func (s *EventSubWS) Start(ctx context.Context) (<-chan event.TwitchEvent, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, eventSubURL, nil)
	if err != nil {
		return nil, fmt.Errorf("eventsub: dial: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(welcomeTimeout))
	var welcome eventSubMessage
	if err := conn.ReadJSON(&welcome); err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventsub: read welcome: %w", err)
	}
	if welcome.Metadata.MessageType != messageTypeWelcome || welcome.Payload.Session == nil {
		conn.Close()
		return nil, fmt.Errorf("eventsub: expected welcome message, got %s", welcome.Metadata.MessageType)
	}
	conn.SetReadDeadline(time.Time{})
	sessionID := welcome.Payload.Session.ID

	if err := s.subscribe(ctx, sessionID, "channel.chat.message"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventsub: subscribe chat.message: %w", err)
	}
	if err := s.subscribe(ctx, sessionID, "channel.raid"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventsub: subscribe raid: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.done = make(chan struct{})
	s.mu.Unlock()

	events := make(chan event.TwitchEvent, eventChannelCapacity)
	go s.readLoop(conn, events)

	return events, nil
}

func (s *EventSubWS) subscribe(ctx context.Context, sessionID, subscriptionType string) error {
	bearer, err := s.tokens.Token(ctx)
	if err != nil {
		return err
	}

	condition := map[string]string{"broadcaster_user_id": s.broadcasterID}
	if subscriptionType == "channel.chat.message" {
		condition["user_id"] = s.broadcasterID
	}

	body := map[string]interface{}{
		"type":      subscriptionType,
		"version":   "1",
		"condition": condition,
		"transport": map[string]string{
			"method":     "websocket",
			"session_id": sessionID,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, eventSubSubscribeURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Client-Id", s.clientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("eventsub: subscribe %s failed with status %d", subscriptionType, resp.StatusCode)
	}
	return nil
}

func (s *EventSubWS) readLoop(conn *websocket.Conn, events chan<- event.TwitchEvent) {
	defer close(events)
	defer func() {
		s.mu.Lock()
		if s.done != nil {
			close(s.done)
			s.done = nil
		}
		s.mu.Unlock()
	}()

	for {
		var msg eventSubMessage
		if err := conn.ReadJSON(&msg); err != nil {
			s.logger.Warn("eventsub connection read error", map[string]interface{}{"error": err.Error()})
			return
		}

		switch msg.Metadata.MessageType {
		case messageTypeKeepalive:
			continue
		case messageTypeReconnect, messageTypeRevocation:
			s.logger.Warn("eventsub session ending", map[string]interface{}{"reason": string(msg.Metadata.MessageType)})
			return
		case messageTypeNotification:
			evt, ok := s.normalize(msg)
			if !ok {
				continue
			}
			select {
			case events <- evt:
			default:
				s.logger.Warn("eventsub event channel full, dropping event", nil)
			}
		}
	}
}

func (s *EventSubWS) normalize(msg eventSubMessage) (event.TwitchEvent, bool) {
	if msg.Payload.Subscription == nil {
		return event.TwitchEvent{}, false
	}

	switch msg.Payload.Subscription.Type {
	case "channel.chat.message":
		var e chatMessageEvent
		if err := json.Unmarshal(msg.Payload.Event, &e); err != nil {
			return event.TwitchEvent{}, false
		}
		badges := make([]string, 0, len(e.Badges))
		for _, b := range e.Badges {
			badges = append(badges, b.SetID)
		}
		return event.NewChatMessage(event.ChatMessage{
			User:      e.ChatterUserLogin,
			UserID:    e.ChatterUserID,
			ChannelID: e.BroadcasterUserID,
			Text:      e.Message.Text,
			Badges:    badges,
		}), true

	case "channel.raid":
		var e raidEvent
		if err := json.Unmarshal(msg.Payload.Event, &e); err != nil {
			return event.TwitchEvent{}, false
		}
		return event.NewRaid(event.Raid{
			FromUser:    e.FromBroadcasterUserName,
			ToUser:      e.ToBroadcasterUserName,
			ViewerCount: e.Viewers,
		}), true

	default:
		return event.TwitchEvent{}, false
	}
}

// Stop implements Source.
func (s *EventSubWS) Stop() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
