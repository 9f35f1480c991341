package channel

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

const inviteLinkPrefix = "zajel://channel/"

type inviteLinkPayload struct {
	ChannelID string   `json:"channel_id"`
	Manifest  Manifest `json:"manifest"`
}

// EncodeInviteLink builds the "zajel://channel/" invite link for a
// channel's manifest.
func EncodeInviteLink(channelID string, manifest Manifest) (string, error) {
	raw, err := json.Marshal(inviteLinkPayload{ChannelID: channelID, Manifest: manifest})
	if err != nil {
		return "", err
	}
	return inviteLinkPrefix + base64.URLEncoding.EncodeToString(raw), nil
}

// DecodeInviteLink parses a "zajel://channel/" invite link. A string
// missing the required prefix, including raw unprefixed base64, is
// rejected.
func DecodeInviteLink(link string) (channelID string, manifest Manifest, err error) {
	if !strings.HasPrefix(link, inviteLinkPrefix) {
		return "", Manifest{}, ErrInvalidInviteLink
	}
	encoded := strings.TrimPrefix(link, inviteLinkPrefix)
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", Manifest{}, ErrInvalidInviteLink
	}
	var payload inviteLinkPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", Manifest{}, ErrInvalidInviteLink
	}
	return payload.ChannelID, payload.Manifest, nil
}
