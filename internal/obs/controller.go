package obs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cliparino/cliparino/pkg/utils"
)

// audioMonitorAndOutput routes the browser source's audio to both the
// monitoring device and the stream/recording output, matching the
// documented default player audio routing.
const audioMonitorAndOutput = "OBS_MONITORING_TYPE_MONITOR_AND_OUTPUT"

// DesiredState is the declared scene/source/URL configuration — the
// single source of truth per spec §3. Any observed divergence is drift.
type DesiredState struct {
	SceneName  string
	SourceName string
	Width      int
	Height     int
	URL        string
}

// ObservedState is a snapshot captured on a health poll, used only for
// drift comparison; it is never persisted.
type ObservedState struct {
	URL    string
	Width  int
	Height int
	// InScene reports whether SceneName is nested in the currently
	// active program scene.
	InScene bool
}

// Controller is a desired-state façade over the OBS-WebSocket protocol
// (ObsController, C5). A single Controller instance is shared between
// the supervisor (which owns connection lifecycle) and the playback
// engine (which only issues already-serialized calls).
type Controller struct {
	client  *Client
	logger  *utils.StructuredLogger
	desired DesiredState
}

// NewController wraps client with the given desired player state.
func NewController(client *Client, desired DesiredState, logger *utils.StructuredLogger) *Controller {
	return &Controller{client: client, logger: logger.With("obs"), desired: desired}
}

// SetDesiredState updates the desired state in place. The SIGHUP
// settings reload in cmd/cliparino does not call it.
func (c *Controller) SetDesiredState(desired DesiredState) {
	c.desired = desired
}

// Connect establishes the socket, per spec firing no explicit
// connection event of its own — callers observe success via the
// returned error and IsConnected thereafter.
func (c *Controller) Connect(ctx context.Context, host string, port int, password string) error {
	return c.client.Dial(ctx, host, port, password)
}

// Disconnect gracefully closes the socket.
func (c *Controller) Disconnect() error {
	return c.client.Close()
}

// IsConnected reports whether the socket is currently open.
func (c *Controller) IsConnected() bool {
	return c.client.IsConnected()
}

// Disconnected returns the channel that closes the moment the current
// connection drops, letting a caller react immediately instead of
// polling IsConnected.
func (c *Controller) Disconnected() <-chan struct{} {
	return c.client.Disconnected()
}

type sceneListResponse struct {
	Scenes []struct {
		SceneName string `json:"sceneName"`
	} `json:"scenes"`
}

type inputSettingsResponse struct {
	InputSettings map[string]interface{} `json:"inputSettings"`
}

type sceneItemListResponse struct {
	SceneItems []struct {
		SceneItemID int    `json:"sceneItemId"`
		SourceName  string `json:"sourceName"`
	} `json:"sceneItems"`
}

type sceneItemIDResponse struct {
	SceneItemID int `json:"sceneItemId"`
}

type currentProgramSceneResponse struct {
	CurrentProgramSceneName string `json:"currentProgramSceneName"`
}

func (c *Controller) sceneExists(ctx context.Context, name string) (bool, error) {
	raw, err := c.client.Call(ctx, "GetSceneList", nil)
	if err != nil {
		return false, err
	}
	var resp sceneListResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, fmt.Errorf("obs: decode scene list: %w", err)
	}
	for _, s := range resp.Scenes {
		if s.SceneName == name {
			return true, nil
		}
	}
	return false, nil
}

func (c *Controller) sceneItemID(ctx context.Context, sceneName, sourceName string) (int, bool, error) {
	raw, err := c.client.Call(ctx, "GetSceneItemList", map[string]interface{}{"sceneName": sceneName})
	if err != nil {
		return 0, false, err
	}
	var resp sceneItemListResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, false, fmt.Errorf("obs: decode scene item list: %w", err)
	}
	for _, item := range resp.SceneItems {
		if item.SourceName == sourceName {
			return item.SceneItemID, true, nil
		}
	}
	return 0, false, nil
}

// EnsureSceneAndSource is idempotent: it creates the scene and browser
// source if absent, with the documented default settings, and patches
// width/height/URL if they differ from desired. It also ensures the
// managed scene is nested as an item in the currently active program
// scene.
func (c *Controller) EnsureSceneAndSource(ctx context.Context, desired DesiredState) error {
	if !c.IsConnected() {
		return &NotConnectedError{}
	}
	c.desired = desired

	exists, err := c.sceneExists(ctx, desired.SceneName)
	if err != nil {
		return err
	}
	if !exists {
		if _, err := c.client.Call(ctx, "CreateScene", map[string]interface{}{"sceneName": desired.SceneName}); err != nil {
			return err
		}
	}

	itemID, hasItem, err := c.sceneItemID(ctx, desired.SceneName, desired.SourceName)
	if err != nil {
		return err
	}

	browserSettings := map[string]interface{}{
		"url":                   desired.URL,
		"width":                 desired.Width,
		"height":                desired.Height,
		"fps_custom":            true,
		"fps":                   60,
		"restart_when_active":   true,
		"shutdown":              true,
		"webpage_control_level": 2,
	}

	if !hasItem {
		if _, err := c.client.Call(ctx, "CreateInput", map[string]interface{}{
			"sceneName":     desired.SceneName,
			"inputName":     desired.SourceName,
			"inputKind":     "browser_source",
			"inputSettings": browserSettings,
		}); err != nil {
			return err
		}
	} else {
		raw, err := c.client.Call(ctx, "GetInputSettings", map[string]interface{}{"inputName": desired.SourceName})
		if err != nil {
			return err
		}
		var resp inputSettingsResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("obs: decode input settings: %w", err)
		}

		needsUpdate := fmt.Sprintf("%v", resp.InputSettings["url"]) != desired.URL ||
			fmt.Sprintf("%v", resp.InputSettings["width"]) != fmt.Sprintf("%v", desired.Width) ||
			fmt.Sprintf("%v", resp.InputSettings["height"]) != fmt.Sprintf("%v", desired.Height)

		if needsUpdate {
			if _, err := c.client.Call(ctx, "SetInputSettings", map[string]interface{}{
				"inputName":     desired.SourceName,
				"inputSettings": browserSettings,
				"overlay":       true,
			}); err != nil {
				return err
			}
			if err := c.RefreshBrowserSource(ctx); err != nil {
				return err
			}
		}
		_ = itemID
	}

	if _, err := c.client.Call(ctx, "SetInputAudioMonitorType", map[string]interface{}{
		"inputName":   desired.SourceName,
		"monitorType": audioMonitorAndOutput,
	}); err != nil {
		return err
	}

	raw, err := c.client.Call(ctx, "GetCurrentProgramScene", nil)
	if err != nil {
		return err
	}
	var current currentProgramSceneResponse
	if err := json.Unmarshal(raw, &current); err != nil {
		return fmt.Errorf("obs: decode current program scene: %w", err)
	}

	if current.CurrentProgramSceneName != desired.SceneName {
		_, nested, err := c.sceneItemID(ctx, current.CurrentProgramSceneName, desired.SceneName)
		if err != nil {
			return err
		}
		if !nested {
			if _, err := c.client.Call(ctx, "CreateSceneItem", map[string]interface{}{
				"sceneName":     current.CurrentProgramSceneName,
				"sourceName":    desired.SceneName,
				"sceneItemEnabled": true,
			}); err != nil {
				return err
			}
		}
	}

	return nil
}

// SetBrowserSourceUrl updates the browser source's URL without changing
// visibility.
func (c *Controller) SetBrowserSourceUrl(ctx context.Context, url string) error {
	if !c.IsConnected() {
		return &NotConnectedError{}
	}
	_, err := c.client.Call(ctx, "SetInputSettings", map[string]interface{}{
		"inputName":     c.desired.SourceName,
		"inputSettings": map[string]interface{}{"url": url},
		"overlay":       true,
	})
	return err
}

// RefreshBrowserSource forces the embedded browser to reload by
// re-pressing the refresh button property on the input.
func (c *Controller) RefreshBrowserSource(ctx context.Context) error {
	if !c.IsConnected() {
		return &NotConnectedError{}
	}
	_, err := c.client.Call(ctx, "PressInputPropertiesButton", map[string]interface{}{
		"inputName":    c.desired.SourceName,
		"propertyName": "refreshnocache",
	})
	return err
}

// SetSourceVisibility idempotently toggles the scene item's enabled flag.
func (c *Controller) SetSourceVisibility(ctx context.Context, sceneName, sourceName string, visible bool) error {
	if !c.IsConnected() {
		return &NotConnectedError{}
	}
	itemID, ok, err := c.sceneItemID(ctx, sceneName, sourceName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("obs: scene item %s not found in scene %s", sourceName, sceneName)
	}
	_, err = c.client.Call(ctx, "SetSceneItemEnabled", map[string]interface{}{
		"sceneName":        sceneName,
		"sceneItemId":      itemID,
		"sceneItemEnabled": visible,
	})
	return err
}

// ObserveState returns the current URL, width, height, and scene
// membership of the managed source, for drift comparison.
func (c *Controller) ObserveState(ctx context.Context) (ObservedState, error) {
	if !c.IsConnected() {
		return ObservedState{}, &NotConnectedError{}
	}

	raw, err := c.client.Call(ctx, "GetInputSettings", map[string]interface{}{"inputName": c.desired.SourceName})
	if err != nil {
		return ObservedState{}, err
	}
	var settings inputSettingsResponse
	if err := json.Unmarshal(raw, &settings); err != nil {
		return ObservedState{}, fmt.Errorf("obs: decode input settings: %w", err)
	}

	observed := ObservedState{
		URL: fmt.Sprintf("%v", settings.InputSettings["url"]),
	}
	if w, ok := settings.InputSettings["width"].(float64); ok {
		observed.Width = int(w)
	}
	if h, ok := settings.InputSettings["height"].(float64); ok {
		observed.Height = int(h)
	}

	raw, err = c.client.Call(ctx, "GetCurrentProgramScene", nil)
	if err != nil {
		return ObservedState{}, err
	}
	var current currentProgramSceneResponse
	if err := json.Unmarshal(raw, &current); err != nil {
		return ObservedState{}, fmt.Errorf("obs: decode current program scene: %w", err)
	}
	if current.CurrentProgramSceneName == c.desired.SceneName {
		observed.InScene = true
	} else {
		_, nested, err := c.sceneItemID(ctx, current.CurrentProgramSceneName, c.desired.SceneName)
		if err == nil {
			observed.InScene = nested
		}
	}

	return observed, nil
}
