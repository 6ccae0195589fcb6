package obs

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliparino/cliparino/pkg/utils"
)

// fakeOBSServer is a minimal OBS-WebSocket v5 server: it sends a Hello
// with no authentication challenge, accepts any Identify, replies
// Identified, then answers every Request with a canned
// RequestResponse keyed by request type.
func fakeOBSServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if !completeHandshake(conn) {
			return
		}

		for {
			var req frame
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			var rd requestData
			if err := json.Unmarshal(req.D, &rd); err != nil {
				return
			}

			respBytes, _ := json.Marshal(requestResponseData{
				RequestType:   rd.RequestType,
				RequestID:     rd.RequestID,
				RequestStatus: requestStatus{Result: true, Code: 100},
				ResponseData:  json.RawMessage(responseFor(rd.RequestType)),
			})
			if err := conn.WriteJSON(frame{Op: opRequestResponse, D: respBytes}); err != nil {
				return
			}
		}
	}))
}

// fakeOBSServerSilent completes the handshake but never answers Request
// frames, to exercise Call's ctx-cancellation path.
func fakeOBSServerSilent(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if !completeHandshake(conn) {
			return
		}

		for {
			var req frame
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
		}
	}))
}

func completeHandshake(conn *websocket.Conn) bool {
	helloBytes, _ := json.Marshal(helloData{ObsWebSocketVersion: "5.0.0", RPCVersion: rpcVersion})
	if err := conn.WriteJSON(frame{Op: opHello, D: helloBytes}); err != nil {
		return false
	}

	var identify frame
	if err := conn.ReadJSON(&identify); err != nil {
		return false
	}

	identifiedBytes, _ := json.Marshal(identifiedData{NegotiatedRPCVersion: rpcVersion})
	return conn.WriteJSON(frame{Op: opIdentified, D: identifiedBytes}) == nil
}

func responseFor(requestType string) string {
	switch requestType {
	case "GetSceneList":
		return `{"scenes":[{"sceneName":"Cliparino"}]}`
	case "GetSceneItemList":
		return `{"sceneItems":[{"sceneItemId":1,"sourceName":"Player"}]}`
	case "GetCurrentProgramScene":
		return `{"currentProgramSceneName":"Cliparino"}`
	case "GetInputSettings":
		return `{"inputSettings":{"url":"http://player/current","width":1920,"height":1080}}`
	default:
		return `{}`
	}
}

func dialTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	logger := utils.NewStructuredLogger(utils.LogLevelDebug)
	client := NewClient(logger)

	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Dial(ctx, host, port, ""))
	return client
}

func TestComputeAuthString(t *testing.T) {
	a := computeAuthString("password", "salt1", "challenge1")
	b := computeAuthString("password", "salt1", "challenge1")
	c := computeAuthString("password", "salt2", "challenge1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestClientDialAndCall(t *testing.T) {
	server := fakeOBSServer(t)
	defer server.Close()

	client := dialTestClient(t, server)
	defer client.Close()

	assert.True(t, client.IsConnected())

	raw, err := client.Call(context.Background(), "GetSceneList", nil)
	require.NoError(t, err)

	var resp sceneListResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "Cliparino", resp.Scenes[0].SceneName)
}

func TestClientCallFailsWhenNotConnected(t *testing.T) {
	logger := utils.NewStructuredLogger(utils.LogLevelDebug)
	client := NewClient(logger)

	_, err := client.Call(context.Background(), "GetSceneList", nil)
	assert.IsType(t, &NotConnectedError{}, err)
}

func TestClientCallHonorsContextCancellation(t *testing.T) {
	server := fakeOBSServerSilent(t)
	defer server.Close()

	client := dialTestClient(t, server)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Call(ctx, "NeverRespondedTo", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
