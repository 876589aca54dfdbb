package model

import "time"

// Roles name the two processes. Each role owns one durable slot.
const (
	RolePrimary   = "primary"
	RoleSatellite = "satellite"
)

// PairingUser is the basic-auth user under which paired processes present the shared secret.
const PairingUser = "voicecommit"

// SyncKind tags a SyncMessage.
type SyncKind string

const (
	SyncTokenUpdate  SyncKind = "tokenUpdate"
	SyncTokenClear   SyncKind = "tokenClear"
	SyncTokenRequest SyncKind = "requestToken"
	SyncTokenReply   SyncKind = "tokenReply"
	SyncAPIKeyUpdate SyncKind = "apiKeyUpdate"
	// SyncAck is only ever sent as a reply.
	SyncAck SyncKind = "ack"
)

const (
	ReplyStatusSuccess = "success"
	ReplyStatusNoToken = "no_token"
	ReplyStatusError   = "error"
)

// SyncMessage is exchanged between the primary and satellite processes. Version is the time,
// in Unix nanoseconds, at which the sender's carried state was set; receivers drop state older
// than what they hold. Zero means unversioned.
type SyncMessage struct {
	Kind       SyncKind   `json:"action"`
	Token      string     `json:"token,omitempty"`
	OwnerLogin string     `json:"username,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	APIKey     string     `json:"api_key,omitempty"`
	Status     string     `json:"status,omitempty"`
	Message    string     `json:"message,omitempty"`
	Version    int64      `json:"version,omitempty"`
}

// TokenUpdate builds a tokenUpdate carrying t as of version.
func TokenUpdate(t AuthToken, version int64) SyncMessage {
	return SyncMessage{Kind: SyncTokenUpdate, Token: t.Value, OwnerLogin: t.OwnerLogin, ExpiresAt: t.ExpiresAt, Version: version}
}

// TokenReply answers a tokenRequest. A nil token yields the explicit "no token" marker; with a
// non-zero version it states that the token was cleared at that version.
func TokenReply(t *AuthToken, version int64) SyncMessage {
	if t == nil {
		return SyncMessage{Kind: SyncTokenReply, Status: ReplyStatusNoToken, Version: version}
	}
	return SyncMessage{Kind: SyncTokenReply, Token: t.Value, OwnerLogin: t.OwnerLogin, ExpiresAt: t.ExpiresAt, Status: ReplyStatusSuccess, Version: version}
}

// Ack builds a reply with status and a short message.
func Ack(status, message string) SyncMessage {
	return SyncMessage{Kind: SyncAck, Status: status, Message: message}
}

// AuthToken extracts the token carried by a tokenUpdate or tokenReply.
func (m SyncMessage) AuthToken() AuthToken {
	return NewAuthToken(m.Token, m.OwnerLogin, m.ExpiresAt)
}
