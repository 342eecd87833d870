package passage

import (
	"fmt"
	"strings"
)

// Pong is the reply to a ping.
const Pong = "Pong!"

// Command describes one user-facing command.
type Command struct {
	Name        string `json:"name"`
	Usage       string `json:"usage"`
	Description string `json:"description"`
}

// Commands lists the commands a host exposes for book.
func Commands(book string) []Command {
	if book == "" {
		book = DefaultBook
	}
	return []Command{
		{Name: "commands", Usage: "commands", Description: "Show list of commands"},
		{Name: "ping", Usage: "ping", Description: "Test bot responsiveness"},
		{Name: "lookup", Usage: "lookup <chapter:verse> or <chapter:verse-verse>", Description: "Get passage from " + book},
	}
}

// HelpText renders commands as a message, each usage prefixed with prefix
// ("!" or "/" on chat hosts, "" on the CLI).
func HelpText(prefix string, commands []Command) string {
	var sb strings.Builder
	sb.WriteString("**Available Commands:**\n")
	for _, c := range commands {
		fmt.Fprintf(&sb, "`%s%s` - %s\n", prefix, c.Usage, c.Description)
	}
	return sb.String()
}
