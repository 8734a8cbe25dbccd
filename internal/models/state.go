// Package models defines session state structures for PDIMentor.
package models

import "time"

// SessionState is everything the mentor remembers about one user between requests.
type SessionState struct {
	ID        string            `json:"id"`
	Messages  []Message         `json:"messages"`
	StepIndex int               `json:"step_index"`
	Configs   map[string]string `json:"configs"`
	// PendingChoice holds a selection that has not been confirmed yet.
	PendingChoice string `json:"pending_choice,omitempty"`
	// Notice is a one-shot message (error or warning) shown on the next render.
	Notice    string    `json:"notice,omitempty"`
	StartTime time.Time `json:"start_time"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionState creates a fresh session whose log holds only the system message.
func NewSessionState(id, systemInstruction string, now time.Time) *SessionState {
	return &SessionState{
		ID:        id,
		Messages:  []Message{{Role: RoleSystem, Content: systemInstruction, Timestamp: now}},
		Configs:   make(map[string]string),
		StartTime: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the end of the log.
func (s *SessionState) Append(role Role, content string, now time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: now})
	s.UpdatedAt = now
}

// LastMessage returns the most recent message, if any.
func (s *SessionState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// RemoveLast drops the most recent message unless it is the system message.
func (s *SessionState) RemoveLast() {
	if len(s.Messages) <= 1 {
		return
	}
	s.Messages = s.Messages[:len(s.Messages)-1]
}

// SetSystem rewrites the content of messages[0], creating it if the log is empty.
func (s *SessionState) SetSystem(content string) {
	if len(s.Messages) == 0 || s.Messages[0].Role != RoleSystem {
		s.Messages = append([]Message{{Role: RoleSystem, Content: content, Timestamp: s.StartTime}}, s.Messages...)
		return
	}
	s.Messages[0].Content = content
}

// History returns the log without the system message.
func (s *SessionState) History() []Message {
	if len(s.Messages) == 0 {
		return nil
	}
	if s.Messages[0].Role == RoleSystem {
		return s.Messages[1:]
	}
	return s.Messages
}

// Clone returns a deep copy so stores never share slices or maps with callers.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	cp.Configs = make(map[string]string, len(s.Configs))
	for k, v := range s.Configs {
		cp.Configs[k] = v
	}
	return &cp
}

// TakeNotice returns the pending notice and clears it.
func (s *SessionState) TakeNotice() string {
	n := s.Notice
	s.Notice = ""
	return n
}
