package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// MalformedURLError reports a clip URL that doesn't match any of the
// three shapes Twitch issues.
type MalformedURLError struct {
	URL string
}

func (e *MalformedURLError) Error() string {
	return fmt.Sprintf("twitch: malformed clip url: %s", e.URL)
}

var clipURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://clips\.twitch\.tv/([A-Za-z0-9_-]+)/?$`),
	regexp.MustCompile(`^https?://(?:www\.)?twitch\.tv/[^/]+/clip/([A-Za-z0-9_-]+)/?$`),
	regexp.MustCompile(`^https?://m\.twitch\.tv/(?:[^/]+/)?clip/([A-Za-z0-9_-]+)/?$`),
}

// extractClipSlug pulls the clip slug out of any of the three
// documented clip URL shapes, performing no network call. It returns
// MalformedURLError for anything else.
func extractClipSlug(clipURL string) (string, error) {
	for _, pattern := range clipURLPatterns {
		if m := pattern.FindStringSubmatch(clipURL); m != nil {
			return m[1], nil
		}
	}
	return "", &MalformedURLError{URL: clipURL}
}

// GetClipById fetches a single clip by its Helix id, serving from the
// in-memory cache when fresh.
func (c *Client) GetClipById(ctx context.Context, clipID string) (*Clip, error) {
	if cached, ok := c.cache.getClip(clipID); ok {
		return &cached, nil
	}

	params := url.Values{}
	params.Set("id", clipID)

	resp, err := c.doRequest(ctx, "get_clip_by_id", "GET", "/clips", params, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("clip lookup failed: %s", string(body))}
	}

	var clipsResp ClipsResponse
	if err := json.NewDecoder(resp.Body).Decode(&clipsResp); err != nil {
		return nil, fmt.Errorf("twitch: decode clips response: %w", err)
	}
	if len(clipsResp.Data) == 0 {
		return nil, &APIError{StatusCode: 404, Message: fmt.Sprintf("clip not found: %s", clipID)}
	}

	clip := clipsResp.Data[0]
	c.cache.putClip(clip)
	return &clip, nil
}

// GetClipByUrl extracts the slug from clipURL and resolves it via
// GetClipById.
func (c *Client) GetClipByUrl(ctx context.Context, clipURL string) (*Clip, error) {
	slug, err := extractClipSlug(clipURL)
	if err != nil {
		return nil, err
	}
	return c.GetClipById(ctx, slug)
}

// GetBroadcasterIdByLogin resolves a broadcaster's numeric id from their
// login name, serving from the in-memory cache when fresh.
func (c *Client) GetBroadcasterIdByLogin(ctx context.Context, login string) (string, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if cached, ok := c.cache.getBroadcasterID(login); ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("login", login)

	resp, err := c.doRequest(ctx, "get_broadcaster_id_by_login", "GET", "/users", params, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return "", &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("user lookup failed: %s", string(body))}
	}

	var usersResp UsersResponse
	if err := json.NewDecoder(resp.Body).Decode(&usersResp); err != nil {
		return "", fmt.Errorf("twitch: decode users response: %w", err)
	}
	if len(usersResp.Data) == 0 {
		return "", &APIError{StatusCode: 404, Message: fmt.Sprintf("user not found: %s", login)}
	}

	id := usersResp.Data[0].ID
	c.cache.putBroadcasterID(login, id)
	return id, nil
}

// GetClipsForBroadcaster lists a broadcaster's clips created within
// [startedAt, endedAt], capped at first (max 100 per Helix's own limit).
func (c *Client) GetClipsForBroadcaster(ctx context.Context, broadcasterID string, startedAt, endedAt time.Time, first int) ([]Clip, error) {
	if first <= 0 || first > 100 {
		first = 100
	}

	params := url.Values{}
	params.Set("broadcaster_id", broadcasterID)
	params.Set("first", fmt.Sprintf("%d", first))
	if !startedAt.IsZero() {
		params.Set("started_at", startedAt.Format(time.RFC3339))
	}
	if !endedAt.IsZero() {
		params.Set("ended_at", endedAt.Format(time.RFC3339))
	}

	resp, err := c.doRequest(ctx, "get_clips_for_broadcaster", "GET", "/clips", params, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("clips request failed: %s", string(body))}
	}

	var clipsResp ClipsResponse
	if err := json.NewDecoder(resp.Body).Decode(&clipsResp); err != nil {
		return nil, fmt.Errorf("twitch: decode clips response: %w", err)
	}
	return clipsResp.Data, nil
}

// GetChannelInfo fetches a broadcaster's current title and game.
func (c *Client) GetChannelInfo(ctx context.Context, broadcasterID string) (*ChannelInfo, error) {
	params := url.Values{}
	params.Set("broadcaster_id", broadcasterID)

	resp, err := c.doRequest(ctx, "get_channel_info", "GET", "/channels", params, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("channel lookup failed: %s", string(body))}
	}

	var channelsResp channelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&channelsResp); err != nil {
		return nil, fmt.Errorf("twitch: decode channels response: %w", err)
	}
	if len(channelsResp.Data) == 0 {
		return nil, &APIError{StatusCode: 404, Message: fmt.Sprintf("channel not found: %s", broadcasterID)}
	}
	return &channelsResp.Data[0], nil
}

// SendChatMessage posts a message to broadcasterID's chat as senderID
// (the bot's own user id).
func (c *Client) SendChatMessage(ctx context.Context, broadcasterID, senderID, message string) error {
	payload, err := json.Marshal(sendChatMessageRequest{BroadcasterID: broadcasterID, SenderID: senderID, Message: message})
	if err != nil {
		return fmt.Errorf("twitch: encode chat message: %w", err)
	}

	resp, err := c.doRequest(ctx, "send_chat_message", "POST", "/chat/messages", nil, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("send chat message failed: %s", string(body))}
	}

	var chatResp sendChatMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return fmt.Errorf("twitch: decode chat message response: %w", err)
	}
	if len(chatResp.Data) > 0 && !chatResp.Data[0].IsSent {
		reason := "unknown"
		if chatResp.Data[0].DropReason != nil {
			reason = chatResp.Data[0].DropReason.Message
		}
		return &APIError{StatusCode: 200, Message: fmt.Sprintf("chat message dropped: %s", reason)}
	}
	return nil
}

// SendShoutout issues a Twitch-native shoutout from fromBroadcasterID to
// toBroadcasterID, performed by moderatorID.
func (c *Client) SendShoutout(ctx context.Context, fromBroadcasterID, toBroadcasterID, moderatorID string) error {
	params := url.Values{}
	params.Set("from_broadcaster_id", fromBroadcasterID)
	params.Set("to_broadcaster_id", toBroadcasterID)
	params.Set("moderator_id", moderatorID)

	resp, err := c.doRequest(ctx, "send_shoutout", "POST", "/chat/shoutouts", params, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 204 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("shoutout failed: %s", string(body))}
	}
	return nil
}
