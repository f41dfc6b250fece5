package models

import (
	"encoding/json"
	"fmt"
)

// BlockKind names a slide block variant.
type BlockKind string

// Known block kinds.
const (
	BlockText        BlockKind = "text"
	BlockMath        BlockKind = "math"
	BlockQuiz        BlockKind = "quiz"
	BlockCallout     BlockKind = "callout"
	BlockInteraction BlockKind = "interaction"
	BlockImage       BlockKind = "image"
	BlockCode        BlockKind = "code"
)

// TextContent is a heading followed by paragraphs.
type TextContent struct {
	Heading    string   `json:"heading,omitempty"`
	Paragraphs []string `json:"paragraphs"`
}

// MathContent is a display formula.
type MathContent struct {
	LaTeX string `json:"latex"`
}

// QuizOption is a single answer choice.
type QuizOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// QuizContent is a single-answer multiple choice question.
type QuizContent struct {
	Question    string       `json:"question"`
	Options     []QuizOption `json:"options"`
	Correct     string       `json:"correct"`
	Explanation string       `json:"explanation,omitempty"`
}

// CalloutContent is a highlighted note.
type CalloutContent struct {
	Type  string `json:"type"` // info, success, warning
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// InteractionContent configures an interactive simulation. The lesson payload
// is engine specific and kept verbatim.
type InteractionContent struct {
	Lesson json.RawMessage `json:"lesson"`
}

// InteractionType returns the engine selector ("A", "B", "C", "E") from the lesson payload.
func (c *InteractionContent) InteractionType() string {
	var head struct {
		InteractionType string `json:"interactionType"`
	}
	if len(c.Lesson) == 0 || json.Unmarshal(c.Lesson, &head) != nil {
		return ""
	}
	return head.InteractionType
}

// ImageContent is an illustration.
type ImageContent struct {
	URL     string `json:"url"`
	Alt     string `json:"alt,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// CodeContent is a source listing.
type CodeContent struct {
	Language string `json:"language,omitempty"`
	Source   string `json:"source"`
}

// Block is one element of a slide. Exactly one payload field is set, selected by Kind.
// Blocks of a kind this server does not know keep their payload in Raw and are
// re-encoded unchanged.
type Block struct {
	ID   string
	Kind BlockKind

	Text        *TextContent
	Math        *MathContent
	Quiz        *QuizContent
	Callout     *CalloutContent
	Interaction *InteractionContent
	Image       *ImageContent
	Code        *CodeContent
	Raw         json.RawMessage
}

type blockEnvelope struct {
	ID      string          `json:"id"`
	Type    BlockKind       `json:"type"`
	Content json.RawMessage `json:"content"`
}

// Known reports whether the block kind has a typed payload.
func (b *Block) Known() bool {
	switch b.Kind {
	case BlockText, BlockMath, BlockQuiz, BlockCallout, BlockInteraction, BlockImage, BlockCode:
		return true
	}
	return false
}

// UnmarshalJSON decodes the {id, type, content} envelope into the matching variant.
func (b *Block) UnmarshalJSON(data []byte) error {
	var env blockEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("invalid block: %w", err)
	}
	*b = Block{ID: env.ID, Kind: env.Type}

	var target any
	switch env.Type {
	case BlockText:
		b.Text = &TextContent{}
		target = b.Text
	case BlockMath:
		b.Math = &MathContent{}
		target = b.Math
	case BlockQuiz:
		b.Quiz = &QuizContent{}
		target = b.Quiz
	case BlockCallout:
		b.Callout = &CalloutContent{}
		target = b.Callout
	case BlockInteraction:
		b.Interaction = &InteractionContent{}
		target = b.Interaction
	case BlockImage:
		b.Image = &ImageContent{}
		target = b.Image
	case BlockCode:
		b.Code = &CodeContent{}
		target = b.Code
	default:
		b.Raw = append(json.RawMessage(nil), env.Content...)
		return nil
	}

	if len(env.Content) == 0 || string(env.Content) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Content, target); err != nil {
		return fmt.Errorf("invalid %s block %q: %w", env.Type, env.ID, err)
	}
	return nil
}

// MarshalJSON encodes the block back into the {id, type, content} envelope.
func (b Block) MarshalJSON() ([]byte, error) {
	var content any
	switch b.Kind {
	case BlockText:
		content = b.Text
	case BlockMath:
		content = b.Math
	case BlockQuiz:
		content = b.Quiz
	case BlockCallout:
		content = b.Callout
	case BlockInteraction:
		content = b.Interaction
	case BlockImage:
		content = b.Image
	case BlockCode:
		content = b.Code
	default:
		raw := b.Raw
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		content = raw
	}

	encoded, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(blockEnvelope{ID: b.ID, Type: b.Kind, Content: encoded})
}
