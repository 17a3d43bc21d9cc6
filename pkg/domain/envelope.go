package domain

// ContentText is the only content type produced by this server.
const ContentText = "text"

// Content is a single item of an Envelope.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Envelope is the uniform response to every tool invocation, success or failure.
type Envelope struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// TextEnvelope wraps a successful textual result.
func TextEnvelope(text string) Envelope {
	return Envelope{Content: []Content{{Type: ContentText, Text: text}}}
}

// ErrorEnvelope wraps a failure message.
func ErrorEnvelope(text string) Envelope {
	return Envelope{Content: []Content{{Type: ContentText, Text: text}}, IsError: true}
}

// Text concatenates all text items, separated by newlines.
func (e Envelope) Text() string {
	switch len(e.Content) {
	case 0:
		return ""
	case 1:
		return e.Content[0].Text
	}
	out := e.Content[0].Text
	for _, c := range e.Content[1:] {
		out += "\n" + c.Text
	}
	return out
}

// MapText returns a copy of the envelope with fn applied to every text item.
func (e Envelope) MapText(fn func(string) string) Envelope {
	out := Envelope{IsError: e.IsError, Content: make([]Content, len(e.Content))}
	for i, c := range e.Content {
		out.Content[i] = Content{Type: c.Type, Text: fn(c.Text)}
	}
	return out
}
