package transport

import (
	"fmt"
	"net/url"
)

// Params are the handshake parameters fixed for the lifetime of a channel.
type Params struct {
	VoiceID  string
	AgentID  string
	Identity string
	UserID   string
}

// Query keys used on the handshake URL.
const (
	QueryVoiceID  = "voice_id"
	QueryAgentID  = "agent_id"
	QueryIdentity = "identity"
	QueryUserID   = "user_id"
)

// URL appends p to endpoint as query parameters.
func (p Params) URL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("transport: parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set(QueryVoiceID, p.VoiceID)
	set(QueryAgentID, p.AgentID)
	set(QueryIdentity, p.Identity)
	set(QueryUserID, p.UserID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParamsFromQuery is the server side inverse of URL.
func ParamsFromQuery(q url.Values) Params {
	return Params{
		VoiceID:  q.Get(QueryVoiceID),
		AgentID:  q.Get(QueryAgentID),
		Identity: q.Get(QueryIdentity),
		UserID:   q.Get(QueryUserID),
	}
}
