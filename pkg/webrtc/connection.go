package webrtc

import (
	"fmt"
	"log"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
	"github.com/rescp17/peerlink/pkg/negotiation"
)

const (
	MTU uint = 1400

	DefaultSTUNServer = "stun:stun.l.google.com:19302"
)

// Config holds the configuration for creating new connections.
type Config struct {
	ICEServers []webrtc.ICEServer
	// DisableMDNS turns off .local host candidates. They let two peers on
	// the same LAN connect without exposing private addresses.
	DisableMDNS bool
}

// ICEServersFromURLs builds an ICE server list from plain STUN/TURN urls.
func ICEServersFromURLs(urls []string) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return servers
}

// API creates peer connections sharing one pion SettingEngine.
type API struct {
	api    *webrtc.API
	config Config
}

func NewAPI(config Config) *API {
	settings := webrtc.SettingEngine{}
	if !config.DisableMDNS {
		settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryAndGather)
	}
	settings.SetReceiveMTU(MTU)

	// Using NewAPI is crucial for managing multiple PeerConnections in one application.
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))
	if len(config.ICEServers) == 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: []string{DefaultSTUNServer}}}
	}
	return &API{api: api, config: config}
}

// NewPeerConnection creates a connection whose callbacks are routed to obs.
func (a *API) NewPeerConnection(obs negotiation.Observer) (negotiation.PeerConnection, error) {
	pc, err := a.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: a.config.ICEServers,
	})
	if err != nil {
		log.Printf("[NewPeerConnection] %v", err)
		return nil, err
	}

	c := &Connection{peerConnection: pc, observer: obs}
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil && obs.OnICECandidate != nil {
			obs.OnICECandidate(candidate.ToJSON())
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if obs.OnConnectionStateChange != nil {
			obs.OnConnectionStateChange(state)
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		c.watchChannel(dc)
	})
	return c, nil
}

// Connection wraps a single WebRTC peer connection.
type Connection struct {
	peerConnection *webrtc.PeerConnection
	observer       negotiation.Observer
}

var _ negotiation.PeerConnection = (*Connection)(nil)

func (c *Connection) CreateDataChannel(label string) error {
	ordered := true
	dc, err := c.peerConnection.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		log.Printf("[CreateDataChannel] %v", err)
		return err
	}
	c.watchChannel(dc)
	return nil
}

// watchChannel wraps dc before it opens so no message is missed, and reports
// it once open.
func (c *Connection) watchChannel(dc *webrtc.DataChannel) {
	ch := NewDataChannel(dc)
	dc.OnOpen(func() {
		if c.observer.OnChannelOpen != nil {
			c.observer.OnChannelOpen(ch)
		}
	})
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.peerConnection.CreateOffer(nil)
	if err != nil {
		err := fmt.Errorf("fail to create offer: %w", err)
		log.Printf("[CreateOffer] %v", err)
		return webrtc.SessionDescription{}, err
	}
	if err := c.peerConnection.SetLocalDescription(offer); err != nil {
		err := fmt.Errorf("fail to set local description: %w", err)
		log.Printf("[CreateOffer] %v", err)
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.peerConnection.CreateAnswer(nil)
	if err != nil {
		err = fmt.Errorf("failed to create answer: %w", err)
		log.Printf("[CreateAnswer] %v", err)
		return webrtc.SessionDescription{}, err
	}
	if err := c.peerConnection.SetLocalDescription(answer); err != nil {
		err = fmt.Errorf("failed to set local description for answer: %w", err)
		log.Printf("[CreateAnswer] %v", err)
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := c.peerConnection.SetRemoteDescription(desc); err != nil {
		err = fmt.Errorf("failed to set remote description: %w", err)
		log.Printf("[SetRemoteDescription] %v", err)
		return err
	}
	return nil
}

// AddICECandidate adds a candidate received from the other peer.
func (c *Connection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if err := c.peerConnection.AddICECandidate(candidate); err != nil {
		err = fmt.Errorf("failed to add ICE candidate: %w", err)
		log.Printf("[AddICECandidate] %v", err)
		return err
	}
	return nil
}

// Close gracefully shuts down the WebRTC connection.
func (c *Connection) Close() error {
	if c.peerConnection != nil {
		log.Printf("Closing webrtc connection")
		return c.peerConnection.Close()
	}
	return nil
}
