package domain

// Role defines the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType defines the kind of message content.
type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeImage      ContentType = "image"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// Message is one turn of a run's conversation history.
type Message struct {
	Role    Role      `json:"role"`
	Content []Content `json:"content"`
}

// Content represents a single block of a message.
type Content struct {
	Type ContentType `json:"type"`

	// Only one of these will be non-nil
	Text       *TextContent       `json:"text,omitempty"`
	Image      *ImageContent      `json:"image,omitempty"`
	ToolUse    *ToolUseContent    `json:"tool_use,omitempty"`
	ToolResult *ToolResultContent `json:"tool_result,omitempty"`
}

// TextContent contains literal text.
type TextContent struct {
	Content string `json:"content"`
}

// ImageContent contains an encoded image.
type ImageContent struct {
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

// ToolUseContent represents a call to a tool.
type ToolUseContent struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResultContent represents the outcome of a tool call.
type ToolResultContent struct {
	ToolUseID string        `json:"tool_use_id"`
	IsError   bool          `json:"is_error"`
	Content   string        `json:"content"`
	Image     *ImageContent `json:"image,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) Content {
	return Content{Type: ContentTypeText, Text: &TextContent{Content: text}}
}

// ImageBlock returns a PNG image content block.
func ImageBlock(data []byte) Content {
	return Content{Type: ContentTypeImage, Image: &ImageContent{MediaType: "image/png", Data: data}}
}

// ToolUseBlock returns a tool_use content block.
func ToolUseBlock(id, name string, input map[string]any) Content {
	return Content{Type: ContentTypeToolUse, ToolUse: &ToolUseContent{ID: id, Name: name, Input: input}}
}

// ToolResultBlock converts an action result into a tool_result block.
func ToolResultBlock(toolUseID string, res ActionResult) Content {
	tr := &ToolResultContent{
		ToolUseID: toolUseID,
		IsError:   res.IsError(),
		Content:   res.Text(),
	}
	if len(res.Image) > 0 {
		tr.Image = &ImageContent{MediaType: "image/png", Data: res.Image}
	}
	return Content{Type: ContentTypeToolResult, ToolResult: tr}
}

// NewTextMessage returns a single-block text message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []Content{TextBlock(text)}}
}

// ToolUses returns the tool_use blocks of m in order.
func (m Message) ToolUses() []ToolUseContent {
	var uses []ToolUseContent
	for _, c := range m.Content {
		if c.Type == ContentTypeToolUse && c.ToolUse != nil {
			uses = append(uses, *c.ToolUse)
		}
	}
	return uses
}

// Text concatenates the text blocks of m.
func (m Message) Text() string {
	var s string
	for _, c := range m.Content {
		if c.Type == ContentTypeText && c.Text != nil {
			if s != "" {
				s += "\n"
			}
			s += c.Text.Content
		}
	}
	return s
}
