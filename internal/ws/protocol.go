package ws

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Subprotocols offered during the upgrade. JSON is used when the client
// requests neither.
const (
	SubprotocolJSON     = "json.analytics.v1"
	SubprotocolProtobuf = "protobuf.analytics.v1"
)

const (
	protocolJSON     = "json"
	protocolProtobuf = "protobuf"
)

// Topic is the analytics stream a group carries.
type Topic string

const (
	TopicGEX     Topic = "gex"
	TopicFlow    Topic = "flow"
	TopicMaxPain Topic = "maxpain"
)

// typeURL tags protobuf data frames with their topic.
func (t Topic) typeURL() string {
	return "proto." + string(t)
}

// GroupName returns the group streaming topic for ticker, e.g. SPY_gex.
func GroupName(ticker string, topic Topic) string {
	return strings.ToUpper(ticker) + "_" + string(topic)
}

// ParseGroup splits a group name into its ticker and topic.
func ParseGroup(group string) (string, Topic, bool) {
	i := strings.LastIndex(group, "_")
	if i <= 0 {
		return "", "", false
	}
	ticker, topic := group[:i], Topic(group[i+1:])
	switch topic {
	case TopicGEX, TopicFlow, TopicMaxPain:
	default:
		return "", "", false
	}
	if ticker != strings.ToUpper(ticker) {
		return "", "", false
	}
	return ticker, topic, true
}

// Upstream message types for internal routing
type (
	joinGroupRequest struct {
		group string
		ackID *uint64
	}
	leaveGroupRequest struct {
		group string
		ackID *uint64
	}
	pingRequest struct{}
)

// parseUpstream routes a decoded upstream message. Both protocols share the
// {type, group, ackId} shape.
func parseUpstream(msg map[string]any) (any, error) {
	msgType, _ := msg["type"].(string)
	group, _ := msg["group"].(string)

	var ackID *uint64
	if v, ok := msg["ackId"].(float64); ok {
		id := uint64(v)
		ackID = &id
	}

	switch msgType {
	case "joinGroup":
		return &joinGroupRequest{group: group, ackID: ackID}, nil
	case "leaveGroup":
		return &leaveGroupRequest{group: group, ackID: ackID}, nil
	case "ping":
		return &pingRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", msgType)
	}
}

// parseUpstreamMessageJSON parses a JSON-encoded upstream message.
func parseUpstreamMessageJSON(data []byte) (any, error) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal JSON upstream message: %w", err)
	}
	return parseUpstream(msg)
}

// parseUpstreamMessage parses a protobuf upstream message: an Any wrapping a
// google.protobuf.Struct.
func parseUpstreamMessage(data []byte) (any, error) {
	var wrapper anypb.Any
	if err := proto.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("unmarshal upstream message: %w", err)
	}
	var body structpb.Struct
	if err := wrapper.UnmarshalTo(&body); err != nil {
		return nil, fmt.Errorf("unmarshal upstream body: %w", err)
	}
	return parseUpstream(body.AsMap())
}

// ============================================================================
// Downstream message builders
// ============================================================================

func systemFields(connectionID string) map[string]any {
	return map[string]any{
		"type":         "system",
		"event":        "connected",
		"connectionId": connectionID,
	}
}

func ackFields(ackID uint64, success bool) map[string]any {
	return map[string]any{
		"type":    "ack",
		"ackId":   ackID,
		"success": success,
	}
}

func pongFields() map[string]any {
	return map[string]any{"type": "pong"}
}

func buildJSON(fields map[string]any) []byte {
	data, _ := json.Marshal(fields)
	return data
}

// buildProtobuf wraps control fields in a Struct inside an Any.
func buildProtobuf(fields map[string]any) []byte {
	body, err := structpb.NewStruct(fields)
	if err != nil {
		return nil
	}
	wrapper, err := anypb.New(body)
	if err != nil {
		return nil
	}
	data, _ := proto.Marshal(wrapper)
	return data
}

// buildDataMessageJSON embeds the analytics payload directly.
func buildDataMessageJSON(group string, payload json.RawMessage) []byte {
	msg := map[string]any{
		"type":     "message",
		"from":     "group",
		"group":    group,
		"dataType": "json",
		"data":     payload,
	}
	data, _ := json.Marshal(msg)
	return data
}
