package service

import "github.com/worldpeaceenginelabs/cloudatlas.go/common"

// Callbacks is the UI-facing callback surface. Every field is optional.
// Each callback fires at most once per logical event; invocations of the
// same callback preserve relay-delivery order (they are all made from the
// single session loop goroutine).
type Callbacks struct {
	OnRelayStatus       func(connected, total int)
	OnRequest           func(req *GigRequest)
	OnRequestGone       func(id string)
	OnProviderAccepted  func(req *GigRequest)
	OnProviderCount     func(count int)
	OnMatched           func(req *GigRequest)
	OnOwnRequestExpired func()
	OnOwnOfferExpired   func()
}

// emit routes a notification to the matching callback and to the SSE pubsub.
func (svc *Service) emit(n Notification) {
	switch n.Type {
	case common.NotificationRelayStatus:
		if svc.Callbacks.OnRelayStatus != nil {
			svc.Callbacks.OnRelayStatus(n.Connected, n.Total)
		}
	case common.NotificationRequest:
		if svc.Callbacks.OnRequest != nil {
			svc.Callbacks.OnRequest(n.Request)
		}
	case common.NotificationRequestGone:
		if svc.Callbacks.OnRequestGone != nil {
			svc.Callbacks.OnRequestGone(n.RequestID)
		}
	case common.NotificationProviderAccepted:
		if svc.Callbacks.OnProviderAccepted != nil {
			svc.Callbacks.OnProviderAccepted(n.Request)
		}
	case common.NotificationProviderCount:
		if svc.Callbacks.OnProviderCount != nil {
			svc.Callbacks.OnProviderCount(n.Count)
		}
	case common.NotificationMatched:
		if svc.Callbacks.OnMatched != nil {
			svc.Callbacks.OnMatched(n.Request)
		}
	case common.NotificationRequestExpired:
		if svc.Callbacks.OnOwnRequestExpired != nil {
			svc.Callbacks.OnOwnRequestExpired()
		}
	case common.NotificationOfferExpired:
		if svc.Callbacks.OnOwnOfferExpired != nil {
			svc.Callbacks.OnOwnOfferExpired()
		}
	}
	svc.Notifier.Publish(n)
}
