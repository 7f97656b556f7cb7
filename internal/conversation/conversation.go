// Package conversation holds the chat panel's message log and the greetings
// that open it.
//
// A Log is not safe for concurrent use; the widget owns it and serialises
// access under its own lock.
package conversation

import (
	"fmt"
	"strings"
)

// Mode selects which assistant the panel talks to.
type Mode string

const (
	ModeAppGuide Mode = "APP_GUIDE"
	ModeTask     Mode = "TASK"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Message is one entry of the log. Its index is its identity.
type Message struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// UserMessage builds a message from the user.
func UserMessage(text string) Message { return Message{Sender: SenderUser, Text: text} }

// AgentMessage builds a message from the assistant.
func AgentMessage(text string) Message { return Message{Sender: SenderAgent, Text: text} }

// HelpTopics are listed verbatim in the app-guide greeting.
var HelpTopics = []string{
	"How to create tasks",
	"How to use task agents",
	"App features and navigation",
	"Permissions and settings",
	"Any questions about the app!",
}

// Context carries what a greeting interpolates.
type Context struct {
	UserName  string
	TaskTitle string
}

// Greeting returns the opening agent line for mode.
func Greeting(mode Mode, c Context) string {
	name := c.UserName
	if name == "" {
		name = "there"
	}
	if mode == ModeTask {
		return fmt.Sprintf("Hi %s! How can I help with \"%s\"?", name, c.TaskTitle)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s! I'm the App Assistant. I'm here to help you understand how to use this application. Ask me about:\n", name)
	for _, topic := range HelpTopics {
		b.WriteString("\n• ")
		b.WriteString(topic)
	}
	return b.String()
}

// Log is the ordered message history of the active session.
type Log struct {
	messages []Message
}

// NewLog returns an empty log.
func NewLog() *Log { return &Log{} }

// ResetTo replaces the whole log with the greeting for mode. It is the only
// operation that removes messages.
func (l *Log) ResetTo(mode Mode, c Context) {
	l.messages = []Message{AgentMessage(Greeting(mode, c))}
}

// Append adds m at the end.
func (l *Log) Append(m Message) {
	l.messages = append(l.messages, m)
}

// Messages returns a copy of the log.
func (l *Log) Messages() []Message {
	return append([]Message(nil), l.messages...)
}

// Len is the number of messages.
func (l *Log) Len() int { return len(l.messages) }

// Last returns the newest message.
func (l *Log) Last() (Message, bool) {
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}
