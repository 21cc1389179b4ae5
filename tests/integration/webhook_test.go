//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"
)

// webhookRecorder is an http.Handler that stands in for a chat webhook.
// It stores the text of every payload posted to it.
type webhookRecorder struct {
	mu       sync.Mutex
	messages []chatMessage
}

type chatMessage struct {
	Text     string `json:"text"`
	Username string `json:"username"`
}

func newWebhookRecorder() *webhookRecorder {
	return &webhookRecorder{}
}

func (r *webhookRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var msg chatMessage
	if err := json.NewDecoder(req.Body).Decode(&msg); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

// Messages returns a snapshot of everything posted so far.
func (r *webhookRecorder) Messages() []chatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chatMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// WaitForMessage polls until a posted message contains substr. The found
// message and true are returned, or a zero message and false on timeout.
func (r *webhookRecorder) WaitForMessage(substr string, timeout time.Duration) (chatMessage, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, msg := range r.Messages() {
			if strings.Contains(msg.Text, substr) {
				return msg, true
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return chatMessage{}, false
}
