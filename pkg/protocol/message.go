package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/busybox42/aegis-pm/pkg/types"
)

const (
	// PartyInfoPath receives peer announcements.
	PartyInfoPath = "/partyinfo"
	// ResendPath receives resend requests.
	ResendPath = "/resend"

	maxMessageSize = 1024 * 1024 // 1MB
)

// RecipientInfo is one served key in a NodeInfo message.
type RecipientInfo struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// NodeInfo is the JSON form of a peer announcement.
type NodeInfo struct {
	URL        string          `json:"url"`
	Recipients []RecipientInfo `json:"recipients"`
}

// ResendRequest is the JSON body POSTed to a peer's resend endpoint.
type ResendRequest struct {
	PublicKey string `json:"publicKey"`
}

// NewNodeInfo converts an announcement into its wire form.
func NewNodeInfo(announcement types.NodeAnnouncement) NodeInfo {
	info := NodeInfo{
		URL:        announcement.URL,
		Recipients: make([]RecipientInfo, 0, len(announcement.Recipients)),
	}
	for _, r := range announcement.Recipients {
		info.Recipients = append(info.Recipients, RecipientInfo{Key: r.Key.String(), URL: r.URL})
	}
	return info
}

// Announcement decodes the base64 keys of info.
func (info NodeInfo) Announcement() (types.NodeAnnouncement, error) {
	announcement := types.NodeAnnouncement{
		URL:        info.URL,
		Recipients: make([]types.Recipient, 0, len(info.Recipients)),
	}
	for i, r := range info.Recipients {
		key, err := types.PublicKeyFromBase64(r.Key)
		if err != nil {
			return types.NodeAnnouncement{}, fmt.Errorf("recipients[%d]: %w", i, err)
		}
		announcement.Recipients = append(announcement.Recipients, types.Recipient{Key: key, URL: r.URL})
	}
	return announcement, nil
}

// DecodeNodeInfo reads a NodeInfo message from r.
func DecodeNodeInfo(r io.Reader) (types.NodeAnnouncement, error) {
	var info NodeInfo
	if err := decode(r, &info); err != nil {
		return types.NodeAnnouncement{}, fmt.Errorf("failed to decode node info: %w", err)
	}
	return info.Announcement()
}

// DecodeResendRequest reads a resend request body from r and returns the
// requested key.
func DecodeResendRequest(r io.Reader) (types.PublicKey, error) {
	var req ResendRequest
	if err := decode(r, &req); err != nil {
		return nil, fmt.Errorf("failed to decode resend request: %w", err)
	}
	return types.PublicKeyFromBase64(req.PublicKey)
}

// NewResendRequest converts a core request into its wire form.
func NewResendRequest(req types.ResendRequest) ResendRequest {
	return ResendRequest{PublicKey: req.PublicKey}
}

func decode(r io.Reader, v any) error {
	// unknown fields are ignored so peers can extend their messages
	return json.NewDecoder(io.LimitReader(r, maxMessageSize)).Decode(v)
}
