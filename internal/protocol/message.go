// Package protocol implements the Jupyter wire-protocol subset the kernel
// speaks: the message envelope, the closed registry of content types, HMAC
// signing, and the frame codec.
package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Version is the protocol version advertised in headers and in
// kernel_info_reply.
const Version = "5.0"

// Delimiter separates routing identities from the signed envelope body on
// the wire.
const Delimiter = "<IDS|MSG>"

// Header identifies a single message.
type Header struct {
	MsgID    string `json:"msg_id"`
	Username string `json:"username"`
	Session  string `json:"session"`
	MsgType  string `json:"msg_type"`
	Date     string `json:"date,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Message is the decoded envelope. Identities are the opaque routing frames
// received before the delimiter; they are echoed back unchanged on replies.
// Content's concrete type is fixed by Header.MsgType per the registry.
type Message struct {
	Identities   []string
	Header       Header
	ParentHeader Header
	Metadata     map[string]string
	Content      any
}

// newHeader mints a header for an outbound message within the same session
// as the message being answered.
func newHeader(msgType string, like Header) Header {
	return Header{
		MsgID:    uuid.NewString(),
		Username: like.Username,
		Session:  like.Session,
		MsgType:  msgType,
		Date:     time.Now().UTC().Format(time.RFC3339),
		Version:  Version,
	}
}

// Reply builds a response to m: identities are preserved and ParentHeader is
// set to m's header, which is the only correlation mechanism the channel
// offers.
func (m *Message) Reply(msgType string, content any, metadata map[string]string) *Message {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Message{
		Identities:   append([]string(nil), m.Identities...),
		Header:       newHeader(msgType, m.Header),
		ParentHeader: m.Header,
		Metadata:     metadata,
		Content:      content,
	}
}

// Publish builds an unsolicited side-channel message (status, stream)
// triggered by m. The shape is identical to Reply; the parent header lets
// clients attribute the output to the cell that caused it.
func (m *Message) Publish(msgType string, content any, metadata map[string]string) *Message {
	return m.Reply(msgType, content, metadata)
}
