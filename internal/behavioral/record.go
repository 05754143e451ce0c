package behavioral

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EntryKind is the top-level "type" field of a Claude Code JSONL entry.
type EntryKind string

const (
	KindAssistant EntryKind = "assistant"
	KindUser      EntryKind = "user"
	KindSystem    EntryKind = "system"
	KindProgress  EntryKind = "progress"
)

// BlockType is the "type" tag of a content block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// maxContentDepth bounds recursion into nested tool_result content.
const maxContentDepth = 8

// ContentKind discriminates the Content union.
type ContentKind int

const (
	ContentNone ContentKind = iota
	ContentText
	ContentBlocks
)

// Content is message content: either plain text or an ordered list of blocks.
// A tool_result block carries its own Content, so the union is recursive.
type Content struct {
	Kind   ContentKind
	Text   string
	Blocks []Block
}

// Block is one element of block-list content. Only the fields relevant to
// its Type are populated.
type Block struct {
	Type BlockType

	// text
	Text string

	// tool_use
	ID    string
	Name  string
	Input json.RawMessage

	// tool_result
	ToolUseID string
	IsError   bool
	Content   *Content
}

// looseString decodes a JSON string and treats any other value as absent,
// so one wrongly typed field never drops the enclosing record or block.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		*s = ""
		return nil
	}
	*s = looseString(v)
	return nil
}

// rawBlock mirrors the JSON shape of every block type we understand.
type rawBlock struct {
	Type      looseString     `json:"type"`
	Text      looseString     `json:"text"`
	ID        looseString     `json:"id"`
	Name      looseString     `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID looseString     `json:"tool_use_id"`
	IsError   json.RawMessage `json:"is_error"`
	Content   json.RawMessage `json:"content"`
}

// UnmarshalJSON decodes content leniently. Structures it does not understand
// decode to empty content instead of failing the enclosing record.
func (c *Content) UnmarshalJSON(data []byte) error {
	*c = decodeContent(data, 0)
	return nil
}

func decodeContent(raw json.RawMessage, depth int) Content {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Content{Kind: ContentNone}
	}

	switch raw[0] {
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return Content{Kind: ContentNone}
		}
		return Content{Kind: ContentText, Text: text}
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return Content{Kind: ContentNone}
		}
		return Content{Kind: ContentBlocks, Blocks: decodeBlocks(elems, depth)}
	case '{':
		// Objects that are not a block list carry no text we can use
		return Content{Kind: ContentNone}
	default:
		// Numbers and booleans render as their literal text
		return Content{Kind: ContentText, Text: string(raw)}
	}
}

func decodeBlocks(elems []json.RawMessage, depth int) []Block {
	blocks := make([]Block, 0, len(elems))
	for _, elem := range elems {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 {
			continue
		}

		// Bare strings inside a block list are treated as text
		if elem[0] == '"' {
			var text string
			if err := json.Unmarshal(elem, &text); err == nil {
				blocks = append(blocks, Block{Type: BlockText, Text: text})
			}
			continue
		}
		if elem[0] != '{' {
			continue
		}

		var rb rawBlock
		if err := json.Unmarshal(elem, &rb); err != nil {
			continue
		}

		switch BlockType(rb.Type) {
		case BlockText:
			blocks = append(blocks, Block{Type: BlockText, Text: string(rb.Text)})
		case BlockToolUse:
			blocks = append(blocks, Block{
				Type:  BlockToolUse,
				ID:    string(rb.ID),
				Name:  string(rb.Name),
				Input: rb.Input,
			})
		case BlockToolResult:
			block := Block{
				Type:      BlockToolResult,
				ToolUseID: string(rb.ToolUseID),
				IsError:   string(bytes.TrimSpace(rb.IsError)) == "true",
			}
			if depth+1 < maxContentDepth {
				nested := decodeContent(rb.Content, depth+1)
				block.Content = &nested
			}
			blocks = append(blocks, block)
		default:
			// Unknown or missing type tags (image, thinking, ...) are skipped
		}
	}
	return blocks
}

// FlattenText concatenates, in order, every text block at any depth and the
// text of nested tool_result content, joined by single spaces.
func (c Content) FlattenText() string {
	switch c.Kind {
	case ContentText:
		return c.Text
	case ContentBlocks:
		parts := make([]string, 0, len(c.Blocks))
		for _, b := range c.Blocks {
			switch b.Type {
			case BlockText:
				parts = append(parts, b.Text)
			case BlockToolResult:
				parts = append(parts, b.ResultText())
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// ResultText returns the flattened text of a tool_result block's content.
func (b Block) ResultText() string {
	if b.Content == nil {
		return ""
	}
	return b.Content.FlattenText()
}

// ToolUses returns the tool_use blocks of block-list content.
func (c Content) ToolUses() []Block {
	return c.blocksOfType(BlockToolUse)
}

// ToolResults returns the tool_result blocks of block-list content.
func (c Content) ToolResults() []Block {
	return c.blocksOfType(BlockToolResult)
}

func (c Content) blocksOfType(t BlockType) []Block {
	if c.Kind != ContentBlocks {
		return nil
	}
	var out []Block
	for _, b := range c.Blocks {
		if b.Type == t {
			out = append(out, b)
		}
	}
	return out
}

// StringInput returns a string-valued field of a tool_use block's input.
func (b Block) StringInput(key string) (string, bool) {
	if len(b.Input) == 0 {
		return "", false
	}
	var params map[string]interface{}
	if err := json.Unmarshal(b.Input, &params); err != nil {
		return "", false
	}
	v, ok := params[key].(string)
	return v, ok
}

// Record is the normalized view of one JSONL line.
type Record struct {
	Kind    EntryKind // top-level "type", falls back to the role
	Role    string    // top-level "role", then message.role, then Kind
	Content Content
	CWD     string // "cwd" or "workingDirectory" field, if present
	Raw     []byte
}

// IsAssistant reports whether the entry was produced by the assistant.
func (r *Record) IsAssistant() bool {
	return r.Role == string(KindAssistant) || r.Kind == KindAssistant
}

// IsUser reports whether the entry is a user turn (including tool results).
func (r *Record) IsUser() bool {
	return r.Role == string(KindUser) || r.Kind == KindUser
}

// rawRecord is the subset of the Claude Code entry schema the scanner needs.
type rawRecord struct {
	Type             looseString     `json:"type"`
	Role             looseString     `json:"role"`
	Message          json.RawMessage `json:"message"`
	Content          Content         `json:"content"`
	CWD              looseString     `json:"cwd"`
	WorkingDirectory looseString     `json:"workingDirectory"`
}

type messagePayload struct {
	Role    looseString `json:"role"`
	Content Content     `json:"content"`
}

// ParseRecord decodes one JSONL line. Content is taken from message.content
// when a message object is present and from the top-level content otherwise.
func ParseRecord(line []byte) (*Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}

	rec := &Record{
		Kind:    EntryKind(raw.Type),
		Role:    string(raw.Role),
		Content: raw.Content,
		CWD:     string(raw.CWD),
		Raw:     line,
	}
	if rec.CWD == "" {
		rec.CWD = string(raw.WorkingDirectory)
	}

	if msg, ok := decodeMessage(raw.Message); ok {
		rec.Content = msg.Content
		if rec.Role == "" {
			rec.Role = string(msg.Role)
		}
	}

	if rec.Kind == "" {
		rec.Kind = EntryKind(rec.Role)
	}
	if rec.Role == "" {
		rec.Role = string(rec.Kind)
	}

	return rec, nil
}

// decodeMessage returns the nested message when it is a non-empty object.
func decodeMessage(raw json.RawMessage) (messagePayload, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' || bytes.Equal(raw, []byte("{}")) {
		return messagePayload{}, false
	}
	var msg messagePayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		return messagePayload{}, false
	}
	return msg, true
}
