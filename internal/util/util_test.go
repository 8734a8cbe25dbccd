package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		val  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"OFF", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("PDI_TEST_BOOL", tt.val)
		if got := ParseBoolEnv("PDI_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.val, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	def := 24 * time.Hour
	tests := map[string]time.Duration{
		"":      def,
		"90m":   90 * time.Minute,
		"bogus": def,
		"-1h":   def,
	}
	for val, want := range tests {
		t.Setenv("PDI_TEST_TTL", val)
		if got := ParseDurationEnv("PDI_TEST_TTL", def); got != want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", val, got, want)
		}
	}
}

func TestSessionIDs(t *testing.T) {
	id := NewSessionID()
	if !IsValidSessionID(id) {
		t.Errorf("NewSessionID produced invalid id %q", id)
	}
	if NewSessionID() == id {
		t.Errorf("NewSessionID returned duplicate ids")
	}
	wa := WhatsAppSessionID("whatsapp:+5511999990000")
	if wa != "wa:+5511999990000" || !IsValidSessionID(wa) {
		t.Errorf("unexpected WhatsApp session id %q", wa)
	}
	for _, bad := range []string{"", "wa:", "not-a-uuid", "../etc/passwd"} {
		if IsValidSessionID(bad) {
			t.Errorf("IsValidSessionID(%q) = true", bad)
		}
	}
}
