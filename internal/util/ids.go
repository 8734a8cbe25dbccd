package util

import (
	"strings"

	"github.com/google/uuid"
)

// WhatsAppSessionPrefix namespaces sessions opened from the WhatsApp channel.
const WhatsAppSessionPrefix = "wa:"

// NewSessionID returns a random browser session id.
func NewSessionID() string {
	return uuid.New().String()
}

// WhatsAppSessionID derives the stable session id for a WhatsApp sender.
func WhatsAppSessionID(phone string) string {
	return WhatsAppSessionPrefix + strings.TrimPrefix(strings.TrimSpace(phone), "whatsapp:")
}

// IsValidSessionID accepts ids minted by NewSessionID or WhatsAppSessionID.
func IsValidSessionID(id string) bool {
	if rest, ok := strings.CutPrefix(id, WhatsAppSessionPrefix); ok {
		return rest != "" && len(rest) <= 32
	}
	return uuid.Validate(id) == nil
}
