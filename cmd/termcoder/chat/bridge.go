package chat

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrNotAttached is returned when the bridge has no running program.
var ErrNotAttached = errors.New("chat interface is not running")

// askMsg asks the user a question on behalf of a running turn.
type askMsg struct {
	question string
	reply    chan<- string
}

// progressMsg updates the status line while a turn runs.
type progressMsg string

// Bridge lets code running outside the bubbletea loop talk to the user.
// Graph turns run in a command goroutine; capabilities that need an answer
// (shell prompts, ask_user, confirmations) block on the bridge until the
// user replies in the input box.
type Bridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

// NewBridge returns a detached bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach routes messages to a running program, normally (*tea.Program).Send.
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

func (b *Bridge) sender() func(tea.Msg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.send
}

// Ask shows question and waits for the user's answer.
func (b *Bridge) Ask(ctx context.Context, question string) (string, error) {
	send := b.sender()
	if send == nil {
		return "", ErrNotAttached
	}
	reply := make(chan string, 1)
	send(askMsg{question: question, reply: reply})
	select {
	case answer := <-reply:
		return answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Progress updates the status line. Dropped when detached.
func (b *Bridge) Progress(status string) {
	if send := b.sender(); send != nil {
		send(progressMsg(status))
	}
}
