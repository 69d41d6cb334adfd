// internal/resource/presence.go
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/udp"
)

// All-CoAP-nodes IPv4 multicast group.
const (
	presenceAddr = "224.0.1.187:5683"
	presencePath = "/oic/ad"
)

// Presence triggers.
const (
	PresenceCreate = "create"
	PresenceDelete = "delete"
)

type presencePayload struct {
	TTL     int      `json:"ttl"`
	Trigger string   `json:"trg"`
	Types   []string `json:"rt"`
}

// Announce sends one presence advertisement to the multicast group.
// Best effort: callers log failures and move on. Nothing answers a
// multicast announce, so the ctx deadline bounds the call.
func Announce(ctx context.Context, trigger string, ttl int, types []string) error {
	payload, err := json.Marshal(presencePayload{TTL: ttl, Trigger: trigger, Types: types})
	if err != nil {
		return fmt.Errorf("presence: encode: %w", err)
	}

	cc, err := udp.Dial(presenceAddr)
	if err != nil {
		return fmt.Errorf("presence: dial %s: %w", presenceAddr, err)
	}
	defer cc.Close()

	if _, err := cc.Post(ctx, presencePath, message.AppJSON, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("presence: announce %s: %w", trigger, err)
	}
	return nil
}
