package gatewayclient

import "github.com/corvidlabs/missionbridge/internal/domain"

// Observer receives lifecycle and frame notifications from a Client. This
// is a typed-listener shape in place of a dynamic observer registry: one
// method per event kind instead of a string-keyed handler map.
type Observer interface {
	OnConnected(hello domain.GatewayFrame)
	OnEvent(frame domain.GatewayFrame)
	OnPresence(snapshot domain.PresenceSnapshot)
	OnDisconnected()
	OnError(err error)
	OnFatal(err error)
	OnHello(frame domain.GatewayFrame)
	OnChallenge(nonce string)
}

// NoopObserver implements Observer with no-op methods, handy for tests or
// for embedding and overriding a subset of callbacks.
type NoopObserver struct{}

func (NoopObserver) OnConnected(domain.GatewayFrame)    {}
func (NoopObserver) OnEvent(domain.GatewayFrame)        {}
func (NoopObserver) OnPresence(domain.PresenceSnapshot) {}
func (NoopObserver) OnDisconnected()                    {}
func (NoopObserver) OnError(error)                      {}
func (NoopObserver) OnFatal(error)                      {}
func (NoopObserver) OnHello(domain.GatewayFrame)        {}
func (NoopObserver) OnChallenge(string)                 {}

var _ Observer = NoopObserver{}
