// Package token encodes and decodes the capability carried by each
// participant's QR code.
//
// The wire form is a compact JSON object:
//
//	{"eventId":"…","participantId":"…","signature":"…"}
//
// Without a secret the codec runs in placeholder mode: it writes the fixed
// marker "valid" and accepts any signature on verification. With a secret
// the signature is a hex HMAC-SHA256 over the event and participant ids.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/ISTE-SAL/InGress/internal/model"
)

// PlaceholderSignature is written when no secret is configured.
const PlaceholderSignature = "valid"

// Codec encodes and decodes tokens. The zero value is a placeholder codec.
type Codec struct {
	secret []byte
}

// NewCodec returns a codec signing with secret. An empty secret selects
// placeholder mode.
func NewCodec(secret string) *Codec {
	if secret == "" {
		return &Codec{}
	}
	return &Codec{secret: []byte(secret)}
}

// Signed reports whether the codec produces and checks real signatures.
func (c *Codec) Signed() bool {
	return len(c.secret) > 0
}

// Encode serialises the token for (eventID, participantID). The same
// inputs always produce the same string so codes can be reprinted.
func (c *Codec) Encode(eventID, participantID string) (string, error) {
	if eventID == "" || participantID == "" {
		return "", fmt.Errorf("encode token: event id and participant id are required")
	}
	if !utf8.ValidString(eventID) || !utf8.ValidString(participantID) {
		return "", fmt.Errorf("encode token: ids must be valid UTF-8")
	}
	buf, err := json.Marshal(model.Token{
		EventID:       eventID,
		ParticipantID: participantID,
		Signature:     c.sign(eventID, participantID),
	})
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return string(buf), nil
}

// wireToken distinguishes absent fields from empty ones.
type wireToken struct {
	EventID       *string `json:"eventId"`
	ParticipantID *string `json:"participantId"`
	Signature     *string `json:"signature"`
}

// Decode parses raw scanner text. It fails with model.ErrMalformedToken
// only when the payload is structurally unusable; whether the token is
// valid for a given event is decided at redemption.
func (c *Codec) Decode(raw string) (model.Token, error) {
	var w wireToken
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return model.Token{}, model.Deny(model.ReasonMalformedToken, "Invalid QR code", err)
	}
	if w.EventID == nil || *w.EventID == "" {
		return model.Token{}, model.Deny(model.ReasonMalformedToken, "Invalid QR code: missing eventId", nil)
	}
	if w.ParticipantID == nil || *w.ParticipantID == "" {
		return model.Token{}, model.Deny(model.ReasonMalformedToken, "Invalid QR code: missing participantId", nil)
	}
	tok := model.Token{EventID: *w.EventID, ParticipantID: *w.ParticipantID}
	if w.Signature != nil {
		tok.Signature = *w.Signature
	}
	return tok, nil
}

// Verify checks the token's signature. Placeholder codecs accept anything.
func (c *Codec) Verify(tok model.Token) error {
	if !c.Signed() {
		return nil
	}
	got, err := hex.DecodeString(tok.Signature)
	if err != nil || !hmac.Equal(got, c.mac(tok.EventID, tok.ParticipantID)) {
		return model.ErrInvalidSignature
	}
	return nil
}

func (c *Codec) sign(eventID, participantID string) string {
	if !c.Signed() {
		return PlaceholderSignature
	}
	return hex.EncodeToString(c.mac(eventID, participantID))
}

func (c *Codec) mac(eventID, participantID string) []byte {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(eventID))
	h.Write([]byte{0})
	h.Write([]byte(participantID))
	return h.Sum(nil)
}
