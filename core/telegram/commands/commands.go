// Package commands describes slash commands registered with the bot.
package commands

import tele "gopkg.in/telebot.v4"

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Usage is shown by /help, e.g. "/visited <code>"; defaults to the command name.
	Usage     string
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}
