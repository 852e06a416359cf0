package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/googledatalab/igo/internal/wire"
)

// maxIdentityFrames bounds the routing prefix so a garbage stream cannot
// wedge the reader waiting for a delimiter that never comes.
const maxIdentityFrames = 64

// DecodeError reports a malformed envelope or an unsupported msg_type. The
// dispatch loop drops the message and keeps serving.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "protocol: " + e.Reason
	}
	return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Signer computes and checks the envelope signature frame. An empty key
// disables signing: signatures are produced empty and never checked.
type Signer struct {
	key []byte
}

// NewSigner returns a Signer for the connection-file key.
func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key)}
}

// Sign returns the hex HMAC-SHA256 over the body frames in wire order.
func (s *Signer) Sign(parts ...string) string {
	if len(s.key) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, s.key)
	for _, p := range parts {
		mac.Write([]byte(p))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig matches the body frames.
func (s *Signer) Verify(sig string, parts ...string) bool {
	if len(s.key) == 0 {
		return true
	}
	return hmac.Equal([]byte(sig), []byte(s.Sign(parts...)))
}

// Decode parses a raw frame sequence into a Message. The frames are the
// identities, the delimiter, and the five body frames in fixed order:
// signature, header, parent header, metadata, content.
func Decode(frames []string, signer *Signer) (*Message, error) {
	delim := -1
	for i, f := range frames {
		if f == Delimiter {
			delim = i
			break
		}
	}
	if delim < 0 {
		return nil, &DecodeError{Reason: "missing delimiter frame"}
	}
	body := frames[delim+1:]
	if len(body) < 5 {
		return nil, &DecodeError{Reason: fmt.Sprintf("expected 5 body frames, got %d", len(body))}
	}
	sig, header, parent, metadata, content := body[0], body[1], body[2], body[3], body[4]
	if !signer.Verify(sig, header, parent, metadata, content) {
		return nil, &DecodeError{Reason: "signature mismatch"}
	}

	msg := &Message{Identities: append([]string(nil), frames[:delim]...)}
	if err := json.Unmarshal([]byte(header), &msg.Header); err != nil {
		return nil, &DecodeError{Reason: "bad header", Err: err}
	}
	if err := json.Unmarshal([]byte(parent), &msg.ParentHeader); err != nil {
		return nil, &DecodeError{Reason: "bad parent header", Err: err}
	}
	if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
		return nil, &DecodeError{Reason: "bad metadata", Err: err}
	}
	c, ok := NewContent(msg.Header.MsgType)
	if !ok {
		return nil, &DecodeError{Reason: "unsupported msg_type " + msg.Header.MsgType}
	}
	if err := json.Unmarshal([]byte(content), c); err != nil {
		return nil, &DecodeError{Reason: "bad content for " + msg.Header.MsgType, Err: err}
	}
	msg.Content = c
	return msg, nil
}

// Encode is the inverse of Decode and round-trips exactly for every
// registered content type.
func Encode(msg *Message, signer *Signer) ([]string, error) {
	header, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	parent, err := json.Marshal(msg.ParentHeader)
	if err != nil {
		return nil, fmt.Errorf("encode parent header: %w", err)
	}
	metadata := msg.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	content := msg.Content
	if content == nil {
		content = struct{}{}
	}
	body, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}

	h, p, m, c := string(header), string(parent), string(meta), string(body)
	frames := append([]string(nil), msg.Identities...)
	frames = append(frames, Delimiter, signer.Sign(h, p, m, c), h, p, m, c)
	return frames, nil
}

// Read receives one full envelope from ch: identity frames up to the
// delimiter, then the five body frames. Transport errors pass through
// unchanged so the caller can tell them apart from decode faults.
func Read(ch wire.Channel, signer *Signer) (*Message, error) {
	var frames []string
	for {
		frame, err := ch.RecvStr()
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
		if frame == Delimiter {
			break
		}
		if len(frames) > maxIdentityFrames {
			return nil, &DecodeError{Reason: "identity prefix too long"}
		}
	}
	for i := 0; i < 5; i++ {
		frame, err := ch.RecvStr()
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return Decode(frames, signer)
}

// Write encodes msg and sends it as one multipart message on ch.
func Write(ch wire.Channel, msg *Message, signer *Signer) error {
	frames, err := Encode(msg, signer)
	if err != nil {
		return err
	}
	for _, frame := range frames[:len(frames)-1] {
		if err := ch.SendMore(frame); err != nil {
			return err
		}
	}
	return ch.Send(frames[len(frames)-1])
}
