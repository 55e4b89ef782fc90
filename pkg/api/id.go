package api

import (
	"crypto/rand"
	"fmt"
)

const chatCompletionIDPrefix = "chat-"

// NewChatCompletionID generates the "chat-<uuid>" identifier used for
// StreamChunk.id, using a crypto/rand-backed UUIDv4.
func NewChatCompletionID() string {
	return chatCompletionIDPrefix + newUUIDv4()
}

func newUUIDv4() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant 10
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
