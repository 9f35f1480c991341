package transport

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// CreateOffer creates a local SDP offer (initiator side), sets it as the
// local description, and returns its SDP text for relay via
// SignalingLink.
func (c *Channel) CreateOffer() (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

// CreateAnswer applies a remote offer (responder side), creates a local
// SDP answer, sets it as the local description, and returns its SDP text.
func (c *Channel) CreateAnswer(remoteOfferSDP string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: remoteOfferSDP}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return "", err
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// SetRemoteAnswer applies a remote SDP answer (initiator side) once it
// arrives via SignalingLink.
func (c *Channel) SetRemoteAnswer(remoteAnswerSDP string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: remoteAnswerSDP}
	return c.pc.SetRemoteDescription(answer)
}

// WaitICEGatheringComplete blocks until local ICE candidate gathering
// finishes, for callers that relay a single non-trickled SDP blob instead
// of individual candidates via OnICECandidate.
func (c *Channel) WaitICEGatheringComplete(ctx context.Context) error {
	complete := webrtc.GatheringCompletePromise(c.pc)
	select {
	case <-complete:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LocalDescriptionSDP returns the current local SDP, including any
// candidates gathered so far.
func (c *Channel) LocalDescriptionSDP() string {
	desc := c.pc.LocalDescription()
	if desc == nil {
		return ""
	}
	return desc.SDP
}
