package agentruntime

import "fmt"

// MessageContent 是示例消息的正文。
type MessageContent struct {
	Text string `json:"text"`
}

// ExampleMessage 是对话示例中的一条消息。
type ExampleMessage struct {
	Name    string         `json:"name"`
	Content MessageContent `json:"content"`
}

// Style 描述代理的表达风格。
type Style struct {
	All  []string `json:"all"`
	Chat []string `json:"chat"`
	Post []string `json:"post"`
}

// VoiceSettings 是语音设置。
type VoiceSettings struct {
	Model string `json:"model"`
}

// Settings 是代理的运行设置，不允许调用方覆盖。
type Settings struct {
	Secrets map[string]string `json:"secrets"`
	Voice   VoiceSettings     `json:"voice"`
}

// Character 是提交给运行时的代理描述。
type Character struct {
	Name            string             `json:"name"`
	System          string             `json:"system"`
	Bio             []string           `json:"bio"`
	MessageExamples [][]ExampleMessage `json:"messageExamples"`
	PostExamples    []string           `json:"postExamples"`
	Topics          []string           `json:"topics"`
	Adjectives      []string           `json:"adjectives"`
	Style           Style              `json:"style"`
	Plugins         []string           `json:"plugins"`
	Settings        Settings           `json:"settings"`
}

var defaultPlugins = []string{
	"@elizaos/adapter-postgres",
	"@elizaos/plugin-openai",
	"@elizaos/plugin-bootstrap",
	"price-monitor",
	"trade-monitor",
}

// BuildCharacter 根据名称与描述生成代理描述。
// advanced 只允许覆盖 topics、adjectives 与 style 的 all/chat/post，
// 插件列表与设置固定不变。
func BuildCharacter(name, description string, advanced map[string]any) *Character {
	c := &Character{
		Name: name,
		System: fmt.Sprintf("You are %s, an AI agent. %s ", name, description) +
			"Respond to all messages in a helpful, conversational manner. " +
			"Provide assistance on relevant topics, using your knowledge when needed. " +
			"Be concise but thorough, friendly but professional. " +
			"Use humor when appropriate and be empathetic to user needs.",
		Bio: []string{description},
		MessageExamples: [][]ExampleMessage{
			{
				{Name: "{{user1}}", Content: MessageContent{Text: fmt.Sprintf("Hello %s, how can you help me?", name)}},
				{Name: name, Content: MessageContent{Text: fmt.Sprintf("Hello! I'm %s. %s How can I assist you today?", name, description)}},
			},
			{
				{Name: "{{user1}}", Content: MessageContent{Text: "What can you do?"}},
				{Name: name, Content: MessageContent{Text: fmt.Sprintf("I'm here to help! %s Feel free to ask me anything related to my purpose.", description)}},
			},
		},
		PostExamples: []string{
			fmt.Sprintf("As %s, I'm always ready to assist.", name),
			description,
			"Feel free to reach out anytime you need help!",
		},
		Topics:     []string{"assistance", "problem solving", "helpful conversation", "user support"},
		Adjectives: []string{"helpful", "knowledgeable", "friendly", "professional", "efficient", "reliable"},
		Style: Style{
			All: []string{
				"be helpful and informative",
				"maintain a friendly and professional tone",
				"provide clear and concise responses",
				"stay focused on assisting the user",
			},
			Chat: []string{
				"engage in natural conversation",
				"ask clarifying questions when needed",
				"provide step-by-step guidance",
			},
			Post: []string{
				"share useful information",
				"be encouraging and supportive",
			},
		},
		Plugins: append([]string(nil), defaultPlugins...),
		Settings: Settings{
			Secrets: map[string]string{},
			Voice:   VoiceSettings{Model: "en_US-male-medium"},
		},
	}

	if advanced == nil {
		return c
	}
	if topics, ok := stringList(advanced["topics"]); ok {
		c.Topics = topics
	}
	if adjectives, ok := stringList(advanced["adjectives"]); ok {
		c.Adjectives = adjectives
	}
	if style, ok := advanced["style"].(map[string]any); ok {
		if all, ok := stringList(style["all"]); ok {
			c.Style.All = all
		}
		if chat, ok := stringList(style["chat"]); ok {
			c.Style.Chat = chat
		}
		if post, ok := stringList(style["post"]); ok {
			c.Style.Post = post
		}
	}
	return c
}

// stringList 接受 []string 或元素全为字符串的 []any。
func stringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
