// Package obs implements the OBS-WebSocket protocol v5 client
// (ObsController, C5) and its reconnect/drift supervisor
// (ObsHealthSupervisor, C6). No client library for this protocol
// appears anywhere in this module's dependency set, so the wire layer is
// hand-built on gorilla/websocket. The client sets a write deadline on
// each request; it does no ping/pong keepalive of its own.
package obs

import "encoding/json"

// opCode is the OBS-WebSocket v5 "op" field identifying a frame's role.
type opCode int

const (
	opHello            opCode = 0
	opIdentify         opCode = 1
	opIdentified       opCode = 2
	opReidentify       opCode = 3
	opEvent            opCode = 5
	opRequest          opCode = 6
	opRequestResponse  opCode = 7
	opRequestBatch     opCode = 8
	opRequestBatchResp opCode = 9
)

// rpcVersion is the protocol revision this client negotiates.
const rpcVersion = 1

// frame is the envelope every OBS-WebSocket message shares.
type frame struct {
	Op opCode          `json:"op"`
	D  json.RawMessage `json:"d"`
}

// helloData is the payload of an opHello frame.
type helloData struct {
	ObsWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication,omitempty"`
}

// identifyData is the payload of an opIdentify frame.
type identifyData struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

// identifiedData is the payload of an opIdentified frame.
type identifiedData struct {
	NegotiatedRPCVersion int `json:"negotiatedRpcVersion"`
}

// requestData is the payload of an opRequest frame.
type requestData struct {
	RequestType string          `json:"requestType"`
	RequestID   string          `json:"requestId"`
	RequestData json.RawMessage `json:"requestData,omitempty"`
}

// requestStatus reports whether a request succeeded.
type requestStatus struct {
	Result bool   `json:"result"`
	Code   int    `json:"code"`
	Comment string `json:"comment,omitempty"`
}

// requestResponseData is the payload of an opRequestResponse frame.
type requestResponseData struct {
	RequestType   string          `json:"requestType"`
	RequestID     string          `json:"requestId"`
	RequestStatus requestStatus   `json:"requestStatus"`
	ResponseData  json.RawMessage `json:"responseData,omitempty"`
}

// eventData is the payload of an opEvent frame.
type eventData struct {
	EventType   string          `json:"eventType"`
	EventIntent int             `json:"eventIntent"`
	EventData   json.RawMessage `json:"eventData,omitempty"`
}

// eventSubscriptionNone disables all event subscriptions — the
// controller only issues requests and polls state, it never reacts to
// OBS-originated events.
const eventSubscriptionNone = 0
