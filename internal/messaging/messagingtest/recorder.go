// Package messagingtest provides an in-memory Messenger for tests.
package messagingtest

import (
	"context"
	"errors"
	"sync"

	"github.com/learnstations/stationbot/internal/messaging"
)

// Message is one message as last rendered.
type Message struct {
	Ref      messaging.MessageRef
	Text     string
	Keyboard messaging.Keyboard
	Photo    []byte
	Deleted  bool
}

// Recorder records every outbound call. The zero value is ready to use.
type Recorder struct {
	mu     sync.Mutex
	nextID int
	msgs   map[messaging.MessageRef]*Message
	order  []messaging.MessageRef

	// FailSend makes SendText and SendPhoto fail.
	FailSend bool
}

var errGone = errors.New("message to delete not found")

func (r *Recorder) add(chatID int64, text string, kb messaging.Keyboard, photo []byte) (messaging.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSend {
		return messaging.MessageRef{}, errors.New("send failed")
	}
	if r.msgs == nil {
		r.msgs = make(map[messaging.MessageRef]*Message)
	}
	r.nextID++
	ref := messaging.MessageRef{ChatID: chatID, MessageID: r.nextID}
	r.msgs[ref] = &Message{Ref: ref, Text: text, Keyboard: kb, Photo: photo}
	r.order = append(r.order, ref)
	return ref, nil
}

// Put registers a message that exists before the test starts, such as the
// message a callback button belongs to.
func (r *Recorder) Put(chatID int64, text string, kb messaging.Keyboard) messaging.MessageRef {
	ref, _ := r.add(chatID, text, kb, nil)
	return ref
}

func (r *Recorder) SendText(_ context.Context, chatID int64, text string, kb messaging.Keyboard) (messaging.MessageRef, error) {
	return r.add(chatID, text, kb, nil)
}

func (r *Recorder) SendPhoto(_ context.Context, chatID int64, png []byte, caption string) (messaging.MessageRef, error) {
	return r.add(chatID, caption, nil, png)
}

func (r *Recorder) EditText(_ context.Context, ref messaging.MessageRef, text string, kb messaging.Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[ref]
	if !ok || m.Deleted {
		return errGone
	}
	m.Text = text
	m.Keyboard = kb
	return nil
}

func (r *Recorder) EditCaption(_ context.Context, ref messaging.MessageRef, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[ref]
	if !ok || m.Deleted || m.Photo == nil {
		return errGone
	}
	m.Text = caption
	return nil
}

func (r *Recorder) Delete(_ context.Context, ref messaging.MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[ref]
	if !ok || m.Deleted {
		return errGone
	}
	m.Deleted = true
	return nil
}

// Get returns a copy of the message at ref.
func (r *Recorder) Get(ref messaging.MessageRef) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[ref]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Last returns the most recently sent message.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return Message{}, false
	}
	return *r.msgs[r.order[len(r.order)-1]], true
}

// Live returns messages that were not deleted, oldest first.
func (r *Recorder) Live() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, ref := range r.order {
		if m := r.msgs[ref]; !m.Deleted {
			out = append(out, *m)
		}
	}
	return out
}

// Photos returns every photo sent, oldest first.
func (r *Recorder) Photos() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, ref := range r.order {
		if m := r.msgs[ref]; m.Photo != nil {
			out = append(out, *m)
		}
	}
	return out
}
