// Package testutil provides common test utilities and helpers for PDIMentor tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/BTreeMap/PDIMentor/internal/flow"
	"github.com/BTreeMap/PDIMentor/internal/models"
)

// TestingT is the subset of testing.TB the assertion helpers use.
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// MockConverser is a flow.Converser that records calls and answers with Reply or Err.
type MockConverser struct {
	mu         sync.Mutex
	Reply      string
	Err        error
	Calls      int
	LastLog    []models.Message
	LastPrompt string
}

func (m *MockConverser) Converse(ctx context.Context, log []models.Message, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastLog = append([]models.Message(nil), log...)
	m.LastPrompt = prompt
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

// CallCount returns the number of Converse calls so far.
func (m *MockConverser) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// MockSummarizer returns Summary or Err and records invalidations.
type MockSummarizer struct {
	mu          sync.Mutex
	Summary     string
	Err         error
	Calls        int
	LastLanguage string
	Invalidated  []string
}

func (m *MockSummarizer) Summarize(ctx context.Context, sessionID string, log []models.Message, language string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastLanguage = language
	if m.Err != nil {
		return "", m.Err
	}
	return m.Summary, nil
}

func (m *MockSummarizer) Invalidate(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated = append(m.Invalidated, sessionID)
}

// NewTestWalker builds a walker over the default intake.
func NewTestWalker(t *testing.T, conv flow.Converser) *flow.Walker {
	t.Helper()
	w, err := flow.NewWalker(flow.DefaultDefinition(), conv)
	if err != nil {
		t.Fatalf("NewWalker failed: %v", err)
	}
	return w
}

// CompleteIntake confirms the first option of every choice and answers every question with
// answer, applying the final effect, so s ends in open chat.
func CompleteIntake(t *testing.T, w *flow.Walker, s *models.SessionState, answer string) {
	t.Helper()
	for !w.IntakeComplete(s) {
		state, i := w.State(s)
		if state == flow.StateChoice {
			step, _ := w.Definition().Step(i)
			if err := w.Select(s, step.Options[0]); err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if err := w.Confirm(s); err != nil {
				t.Fatalf("Confirm failed: %v", err)
			}
			continue
		}
		eff, err := w.SubmitText(s, answer)
		if err != nil {
			t.Fatalf("SubmitText failed: %v", err)
		}
		if err := w.Apply(context.Background(), s, eff); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TestingT, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a models.APIResponse envelope and validates its status field.
func AssertJSONResponse(t TestingT, body io.Reader, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Errorf("response missing or invalid 'status' field")
	}

	return response
}

// CreateJSONRequest creates an HTTP request with an optional JSON body for testing.
func CreateJSONRequest(t TestingT, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody io.Reader = http.NoBody
	if body != nil {
		reqBody = bytes.NewReader(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TestingT, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TestingT, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
