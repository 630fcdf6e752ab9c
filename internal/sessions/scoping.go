package sessions

import "github.com/hearthfire/hearth/pkg/models"

// MainUser is the constant user slot shared by every sender under the
// main scope.
const MainUser = "main"

// GlobalChannel is the channel slot used when a scope spans transports.
const GlobalChannel = "global"

// ScopeKey maps a (user, channel) pair onto the session key slots for the
// given scope:
//
//   - per-sender: each distinct user gets its own session per channel
//   - main: every sender shares one session per channel
//   - per-peer: one session per user spanning all channels
//   - per-channel-peer: one session per channel+user combination
func ScopeKey(scope models.Scope, userID, channel string) (string, string) {
	switch scope {
	case models.ScopeMain:
		return MainUser, channel
	case models.ScopePerPeer:
		return userID, GlobalChannel
	case models.ScopePerChannelPeer, models.ScopePerSender:
		return userID, channel
	default:
		return userID, channel
	}
}

// ownerMatches reports whether userID may manage the session under the
// store's scope rule. Main-scope sessions are shared, so any authenticated
// caller owns them.
func ownerMatches(session *models.Session, userID string) bool {
	if session.Scope == models.ScopeMain {
		return true
	}
	owner, _ := ScopeKey(session.Scope, userID, session.Channel)
	return session.UserID == owner
}
