package supervisor

import (
	"context"
	"time"

	"github.com/zajel/headless/pkg/channel"
	"github.com/zajel/headless/pkg/group"
	"github.com/zajel/headless/pkg/ipc"
	"github.com/zajel/headless/pkg/peer"
	"github.com/zajel/headless/pkg/signaling"
)

// commandTable builds the fixed IPC command dispatch table.
func (s *Supervisor) commandTable() map[string]ipc.CommandHandler {
	return map[string]ipc.CommandHandler{
		"connect":                 s.cmdConnect,
		"disconnect":              s.cmdDisconnect,
		"status":                  s.cmdStatus,
		"accept_pair":             s.cmdAcceptPair,
		"reject_pair":             s.cmdRejectPair,
		"send_text":               s.cmdSendText,
		"send_file":               s.cmdSendFile,
		"list_peers":              s.cmdListPeers,
		"block_peer":              s.cmdBlockPeer,
		"create_group":            s.cmdCreateGroup,
		"invite_to_group":         s.cmdInviteToGroup,
		"leave_group":             s.cmdLeaveGroup,
		"send_group_message":      s.cmdSendGroupMessage,
		"create_channel":          s.cmdCreateChannel,
		"subscribe_channel":       s.cmdSubscribeChannel,
		"publish_channel_message": s.cmdPublishChannelMessage,
	}
}

func stringArg(req ipc.Request, name string) (string, error) {
	v, ok := req.Args[name]
	if !ok {
		return "", ipc.MissingArgument(name)
	}
	s, ok := v.(string)
	if !ok {
		return "", ipc.BadArgument("argument " + name + " must be a string")
	}
	return s, nil
}

func optionalStringArg(req ipc.Request, name string) string {
	v, ok := req.Args[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func stringSliceArg(req ipc.Request, name string) ([]string, error) {
	v, ok := req.Args[name]
	if !ok {
		return nil, ipc.MissingArgument(name)
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, ipc.BadArgument("argument " + name + " must be an array of strings")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		str, ok := item.(string)
		if !ok {
			return nil, ipc.BadArgument("argument " + name + " must be an array of strings")
		}
		out = append(out, str)
	}
	return out, nil
}

// cmdConnect issues a pair_request naming the code the peer shares with
// us. The remote's pair_incoming/pair_matched round trip proceeds
// through SignalingLink independently of this call's return.
func (s *Supervisor) cmdConnect(ctx context.Context, req ipc.Request) (interface{}, error) {
	code, err := stringArg(req, "code")
	if err != nil {
		return nil, err
	}
	if err := s.link.Send(signaling.FrameTypePairRequest, map[string]interface{}{
		"code": code,
	}); err != nil {
		return nil, err
	}
	return map[string]interface{}{"requested": true}, nil
}

func (s *Supervisor) cmdDisconnect(ctx context.Context, req ipc.Request) (interface{}, error) {
	peerID, err := stringArg(req, "peer_id")
	if err != nil {
		return nil, err
	}
	if err := s.peers.Disconnect(peerID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"disconnected": true}, nil
}

func (s *Supervisor) cmdStatus(ctx context.Context, req ipc.Request) (interface{}, error) {
	return map[string]interface{}{
		"peer_id":          s.myPeerID,
		"pairing_code":     s.pairingCode,
		"signaling_state":  s.link.State().String(),
		"connected_peers":  len(s.peers.ListConnected()),
		"supervisor_state": s.State().String(),
	}, nil
}

func (s *Supervisor) cmdAcceptPair(ctx context.Context, req ipc.Request) (interface{}, error) {
	code, err := stringArg(req, "code")
	if err != nil {
		return nil, err
	}
	publicKey, err := s.pairing.accept(code)
	if err != nil {
		return nil, ipc.BadArgument(err.Error())
	}
	return map[string]interface{}{"public_key": publicKey}, nil
}

func (s *Supervisor) cmdRejectPair(ctx context.Context, req ipc.Request) (interface{}, error) {
	code, err := stringArg(req, "code")
	if err != nil {
		return nil, err
	}
	if err := s.pairing.reject(code); err != nil {
		return nil, ipc.BadArgument(err.Error())
	}
	return map[string]interface{}{"rejected": true}, nil
}

func (s *Supervisor) cmdSendText(ctx context.Context, req ipc.Request) (interface{}, error) {
	peerID, err := stringArg(req, "peer_id")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(req, "content")
	if err != nil {
		return nil, err
	}
	if err := s.peers.SendEncrypted(peerID, []byte(content)); err != nil {
		return nil, err
	}
	return map[string]interface{}{"sent": true}, nil
}

func (s *Supervisor) cmdSendFile(ctx context.Context, req ipc.Request) (interface{}, error) {
	peerID, err := stringArg(req, "peer_id")
	if err != nil {
		return nil, err
	}
	path, err := stringArg(req, "path")
	if err != nil {
		return nil, err
	}
	if err := s.files.SendFile(peerID, path); err != nil {
		return nil, err
	}
	return map[string]interface{}{"sent": true}, nil
}

func (s *Supervisor) cmdListPeers(ctx context.Context, req ipc.Request) (interface{}, error) {
	connected := make(map[string]peer.ConnectedPeer)
	for _, p := range s.peers.ListConnected() {
		connected[p.PeerID] = p
	}

	trusted := s.store.List()
	out := make([]map[string]interface{}, 0, len(trusted))
	for _, p := range trusted {
		entry := map[string]interface{}{
			"peer_id":      p.PeerID,
			"display_name": p.DisplayName,
			"trusted_at":   p.TrustedAt.Format(time.RFC3339),
			"last_seen":    p.LastSeen.Format(time.RFC3339),
			"connected":    false,
		}
		if cp, ok := connected[p.PeerID]; ok {
			entry["connected"] = true
			entry["state"] = cp.State.String()
			delete(connected, p.PeerID)
		}
		out = append(out, entry)
	}
	for _, cp := range connected {
		out = append(out, map[string]interface{}{
			"peer_id":   cp.PeerID,
			"connected": true,
			"state":     cp.State.String(),
		})
	}
	return out, nil
}

func (s *Supervisor) cmdBlockPeer(ctx context.Context, req ipc.Request) (interface{}, error) {
	peerID, err := stringArg(req, "peer_id")
	if err != nil {
		return nil, err
	}
	if err := s.peers.Disconnect(peerID); err != nil && err != peer.ErrNotConnected {
		return nil, err
	}
	if err := s.store.Delete(peerID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"blocked": true}, nil
}

func (s *Supervisor) cmdCreateGroup(ctx context.Context, req ipc.Request) (interface{}, error) {
	groupID, err := stringArg(req, "group_id")
	if err != nil {
		return nil, err
	}
	name, err := stringArg(req, "name")
	if err != nil {
		return nil, err
	}
	members, err := stringSliceArg(req, "members")
	if err != nil {
		return nil, err
	}
	g, err := s.groups.CreateGroup(groupID, name, members)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"group_id": g.GroupID, "name": g.Name}, nil
}

func (s *Supervisor) cmdInviteToGroup(ctx context.Context, req ipc.Request) (interface{}, error) {
	groupID, err := stringArg(req, "group_id")
	if err != nil {
		return nil, err
	}
	peerID, err := stringArg(req, "peer_id")
	if err != nil {
		return nil, err
	}
	if err := s.groups.InviteToGroup(groupID, peerID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"invited": true}, nil
}

func (s *Supervisor) cmdLeaveGroup(ctx context.Context, req ipc.Request) (interface{}, error) {
	groupID, err := stringArg(req, "group_id")
	if err != nil {
		return nil, err
	}
	if err := s.groups.LeaveGroup(groupID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"left": true}, nil
}

func (s *Supervisor) cmdSendGroupMessage(ctx context.Context, req ipc.Request) (interface{}, error) {
	groupID, err := stringArg(req, "group_id")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(req, "content")
	if err != nil {
		return nil, err
	}
	g, ok := s.groups.Get(groupID)
	if !ok {
		return nil, group.ErrGroupNotFound
	}
	connectedMembers := make(map[string]string)
	for _, cp := range s.peers.ListConnected() {
		if _, isMember := g.Members[cp.PeerID]; isMember {
			connectedMembers[cp.PeerID] = cp.PeerID
		}
	}
	msg, err := s.groups.Send(groupID, []byte(content), connectedMembers)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"message_id": msg.MessageID, "sequence": msg.SequenceNumber}, nil
}

func (s *Supervisor) cmdCreateChannel(ctx context.Context, req ipc.Request) (interface{}, error) {
	channelID, err := stringArg(req, "channel_id")
	if err != nil {
		return nil, err
	}
	name, err := stringArg(req, "name")
	if err != nil {
		return nil, err
	}
	description := optionalStringArg(req, "description")
	ch, err := s.channels.CreateChannel(channelID, name, description)
	if err != nil {
		return nil, err
	}
	link, err := channel.EncodeInviteLink(ch.ID, ch.Manifest)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"channel_id": ch.ID, "invite_link": link}, nil
}

func (s *Supervisor) cmdSubscribeChannel(ctx context.Context, req ipc.Request) (interface{}, error) {
	link, err := stringArg(req, "invite_link")
	if err != nil {
		return nil, err
	}
	channelID, manifest, err := channel.DecodeInviteLink(link)
	if err != nil {
		return nil, ipc.BadArgument(err.Error())
	}
	ch, err := s.channels.Subscribe(channelID, manifest)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"channel_id": ch.ID, "name": ch.Manifest.Name}, nil
}

func (s *Supervisor) cmdPublishChannelMessage(ctx context.Context, req ipc.Request) (interface{}, error) {
	channelID, err := stringArg(req, "channel_id")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(req, "content")
	if err != nil {
		return nil, err
	}
	chunks, err := s.channels.Publish(channelID, []byte(content))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"chunks": len(chunks)}, nil
}
