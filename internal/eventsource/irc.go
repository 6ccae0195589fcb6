package eventsource

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cliparino/cliparino/internal/event"
	"github.com/cliparino/cliparino/internal/token"
	"github.com/cliparino/cliparino/pkg/utils"
)

const (
	ircHost       = "irc.chat.twitch.tv:6667"
	ircDialTimeout = 10 * time.Second
)

// IRC is the fallback EventSource: legacy Twitch chat over plain TCP,
// used when EventSubWS is unavailable.
type IRC struct {
	login         string
	channel       string
	tokens        token.Provider
	logger        *utils.StructuredLogger

	mu   sync.Mutex
	conn net.Conn
}

// NewIRC constructs an IRC source. login is the bot account's own
// username; channel is the broadcaster's login to join.
func NewIRC(login, channel string, tokens token.Provider, logger *utils.StructuredLogger) *IRC {
	return &IRC{
		login:   strings.ToLower(login),
		channel: strings.ToLower(channel),
		tokens:  tokens,
		logger:  logger.With("irc"),
	}
}

// Start implements Source.
func (i *IRC) Start(ctx context.Context) (<-chan event.TwitchEvent, error) {
	dialer := net.Dialer{Timeout: ircDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", ircHost)
	if err != nil {
		return nil, fmt.Errorf("irc: dial: %w", err)
	}

	bearer, err := i.tokens.Token(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("irc: get token: %w", err)
	}

	writer := bufio.NewWriter(conn)
	commands := []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands",
		"PASS oauth:" + bearer,
		"NICK " + i.login,
		"JOIN #" + i.channel,
	}
	for _, cmd := range commands {
		if _, err := writer.WriteString(cmd + "\r\n"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("irc: write %q: %w", cmd, err)
		}
	}
	if err := writer.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("irc: flush handshake: %w", err)
	}

	i.mu.Lock()
	i.conn = conn
	i.mu.Unlock()

	events := make(chan event.TwitchEvent, eventChannelCapacity)
	go i.readLoop(conn, writer, events)

	return events, nil
}

func (i *IRC) readLoop(conn net.Conn, writer *bufio.Writer, events chan<- event.TwitchEvent) {
	defer close(events)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<16)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "PING ") {
			pong := "PONG " + strings.TrimPrefix(line, "PING ") + "\r\n"
			if _, err := writer.WriteString(pong); err != nil {
				i.logger.Warn("irc write error", map[string]interface{}{"error": err.Error()})
				return
			}
			writer.Flush()
			continue
		}

		evt, ok := parseIRCLine(line)
		if !ok {
			continue
		}
		select {
		case events <- evt:
		default:
			i.logger.Warn("irc event channel full, dropping event", nil)
		}
	}

	if err := scanner.Err(); err != nil {
		i.logger.Warn("irc connection read error", map[string]interface{}{"error": err.Error()})
	}
}

// parseIRCLine parses a single tagged IRC line into a TwitchEvent,
// handling PRIVMSG (chat) and USERNOTICE with msg-id=raid.
func parseIRCLine(line string) (event.TwitchEvent, bool) {
	tags := map[string]string{}
	rest := line
	if strings.HasPrefix(line, "@") {
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return event.TwitchEvent{}, false
		}
		tags = parseIRCTags(line[1:sp])
		rest = line[sp+1:]
	}

	parts := strings.SplitN(rest, " :", 2)
	prefixAndCmd := parts[0]
	var trailing string
	if len(parts) > 1 {
		trailing = parts[1]
	}

	fields := strings.Fields(prefixAndCmd)
	if len(fields) < 2 {
		return event.TwitchEvent{}, false
	}
	command := fields[1]

	switch command {
	case "PRIVMSG":
		badges := parseIRCBadges(tags["badges"])
		return event.NewChatMessage(event.ChatMessage{
			User:      tags["display-name"],
			UserID:    tags["user-id"],
			ChannelID: tags["room-id"],
			Text:      trailing,
			Badges:    badges,
		}), true

	case "USERNOTICE":
		if tags["msg-id"] != "raid" {
			return event.TwitchEvent{}, false
		}
		viewers := 0
		if _, err := fmt.Sscanf(tags["msg-param-viewerCount"], "%d", &viewers); err != nil {
			viewers = 0
		}
		return event.NewRaid(event.Raid{
			FromUser:    tags["msg-param-displayName"],
			ToUser:      tags["room-id"],
			ViewerCount: viewers,
		}), true

	default:
		return event.TwitchEvent{}, false
	}
}

func parseIRCTags(raw string) map[string]string {
	tags := map[string]string{}
	for _, pair := range strings.Split(raw, ";") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		tags[kv[0]] = kv[1]
	}
	return tags
}

func parseIRCBadges(raw string) []string {
	if raw == "" {
		return nil
	}
	var badges []string
	for _, b := range strings.Split(raw, ",") {
		name := strings.SplitN(b, "/", 2)[0]
		badges = append(badges, name)
	}
	return badges
}

// Stop implements Source.
func (i *IRC) Stop() {
	i.mu.Lock()
	conn := i.conn
	i.conn = nil
	i.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
