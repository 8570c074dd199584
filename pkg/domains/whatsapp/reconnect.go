package whatsapp

import (
	"time"

	waEvents "go.mau.fi/whatsmeow/types/events"
)

const (
	reconnectBase     = 3 * time.Second
	reconnectCap      = 60 * time.Second
	reconnectAttempts = 20
	reconnectCoolOff  = 2 * time.Minute
)

// backoffDelay returns the exponential reconnect delay for a 1-based
// attempt number: min(base · 2^(attempt−1), cap).
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}

type closeKind int

const (
	closeTransient closeKind = iota
	closeFatal
)

// classifyClose splits connection-loss events into fatal closures, which
// purge credentials and terminate the session, and transient ones, which
// drive reconnection.
func classifyClose(evt any) (closeKind, string) {
	switch v := evt.(type) {
	case *waEvents.LoggedOut:
		return closeFatal, "logged out from another device"
	case *waEvents.StreamReplaced:
		return closeFatal, "session replaced by another connection"
	case *waEvents.ClientOutdated:
		return closeFatal, "client version rejected by server"
	case *waEvents.ConnectFailure:
		if v.Reason.IsLoggedOut() {
			return closeFatal, "authentication rejected"
		}
		switch int(v.Reason) {
		case 401, 403, 500:
			return closeFatal, "authentication rejected"
		}
		return closeTransient, "connection failure"
	case *waEvents.TemporaryBan:
		return closeFatal, "account temporarily banned"
	case *waEvents.Disconnected:
		return closeTransient, "connection lost"
	case *waEvents.StreamError:
		return closeTransient, "stream error"
	}
	return closeTransient, "connection closed"
}
