package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGreeting_AppGuideListsTopics(t *testing.T) {
	g := Greeting(ModeAppGuide, Context{UserName: "Ali"})
	require.True(t, strings.HasPrefix(g, "Hi Ali! I'm the App Assistant."))
	for _, topic := range HelpTopics {
		require.Contains(t, g, "• "+topic)
	}
	require.Len(t, HelpTopics, 5)
}

func TestGreeting_TaskInterpolatesTitle(t *testing.T) {
	g := Greeting(ModeTask, Context{UserName: "Ali", TaskTitle: "Write report"})
	require.Equal(t, `Hi Ali! How can I help with "Write report"?`, g)
}

func TestGreeting_AnonymousUser(t *testing.T) {
	require.True(t, strings.HasPrefix(Greeting(ModeTask, Context{TaskTitle: "x"}), "Hi there!"))
}

func TestLog_ResetIsIdempotentInLength(t *testing.T) {
	l := NewLog()
	l.ResetTo(ModeAppGuide, Context{})
	l.ResetTo(ModeAppGuide, Context{})
	require.Equal(t, 1, l.Len())
}

func TestLog_ResetTruncates(t *testing.T) {
	l := NewLog()
	l.ResetTo(ModeAppGuide, Context{})
	l.Append(UserMessage("hello"))
	l.Append(AgentMessage("hi"))
	require.Equal(t, 3, l.Len())

	l.ResetTo(ModeTask, Context{TaskTitle: "Ship"})
	msgs := l.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, SenderAgent, msgs[0].Sender)
	require.Contains(t, msgs[0].Text, "Ship")
}

func TestLog_AppendOrderAndCopy(t *testing.T) {
	l := NewLog()
	_, ok := l.Last()
	require.False(t, ok)

	l.Append(UserMessage("a"))
	l.Append(AgentMessage("b"))

	msgs := l.Messages()
	require.Equal(t, []Message{{SenderUser, "a"}, {SenderAgent, "b"}}, msgs)

	msgs[0].Text = "mutated"
	require.Equal(t, "a", l.Messages()[0].Text)

	last, ok := l.Last()
	require.True(t, ok)
	require.Equal(t, "b", last.Text)
}

func TestGreeting_TitleVerbatim(t *testing.T) {
	title := `Fix "quoted" bug — café`
	require.Contains(t, Greeting(ModeTask, Context{TaskTitle: title}), title)
}
