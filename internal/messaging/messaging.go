// Package messaging is the outbound surface the dialogue and redemption code
// talks to. The Telegram adapter in internal/bot implements it.
package messaging

import (
	"context"
	"errors"
)

// ErrNotReady is returned when no transport is attached yet.
var ErrNotReady = errors.New("messaging: transport not ready")

// MessageRef points at one bot-owned message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// IsZero reports whether the reference is unset.
func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

// Button is one inline button. Action is the callback key; Data an optional payload.
type Button struct {
	Text   string
	Action string
	Data   string
}

// Keyboard is a grid of inline buttons, one slice per row.
type Keyboard [][]Button

// Row builds a single-row keyboard.
func Row(buttons ...Button) Keyboard {
	if len(buttons) == 0 {
		return nil
	}
	return Keyboard{buttons}
}

// Messenger sends and edits chat messages. Texts use Telegram Markdown (v1).
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb Keyboard) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, kb Keyboard) error
	SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) (MessageRef, error)
	EditCaption(ctx context.Context, ref MessageRef, caption string) error
	Delete(ctx context.Context, ref MessageRef) error
}
