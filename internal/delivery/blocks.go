package delivery

import (
	"regexp"
	"strings"
)

// BlockType is the structural kind of one Markdown line.
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockTodo      BlockType = "to_do"
	BlockBullet    BlockType = "bulleted_list_item"
	BlockNumbered  BlockType = "numbered_list_item"
	BlockParagraph BlockType = "paragraph"
)

// Block is one converted line. Level is set for headings (1-3), Checked for to-dos.
type Block struct {
	Type    BlockType
	Level   int
	Text    string
	Checked bool
}

var numbered = regexp.MustCompile(`^\d+[.)]\s+`)

var (
	todoPrefixes   = []string{"- [ ] ", "* [ ] ", "- [x] ", "- [X] ", "* [x] ", "* [X] "}
	bulletPrefixes = []string{"- ", "* ", "• "}
)

// ParseMarkdown converts Markdown into blocks line by line. The first matching
// rule wins in this order: heading, checkbox, bullet, numbered, paragraph.
// Blank lines are dropped and input order is preserved.
func ParseMarkdown(md string) []Block {
	lines := strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n")
	blocks := make([]Block, 0, len(lines))
	for _, line := range lines {
		if b, ok := parseLine(line); ok {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

func parseLine(line string) (Block, bool) {
	s := strings.TrimSpace(line)
	if s == "" {
		return Block{}, false
	}
	if level, text, ok := heading(s); ok {
		return Block{Type: BlockHeading, Level: level, Text: text}, true
	}
	for _, p := range todoPrefixes {
		if strings.HasPrefix(s, p) {
			checked := strings.Contains(p, "[x]") || strings.Contains(p, "[X]")
			return Block{Type: BlockTodo, Text: strings.TrimSpace(s[len(p):]), Checked: checked}, true
		}
	}
	for _, p := range bulletPrefixes {
		if strings.HasPrefix(s, p) {
			return Block{Type: BlockBullet, Text: strings.TrimSpace(s[len(p):])}, true
		}
	}
	if loc := numbered.FindStringIndex(s); loc != nil {
		return Block{Type: BlockNumbered, Text: strings.TrimSpace(s[loc[1]:])}, true
	}
	return Block{Type: BlockParagraph, Text: s}, true
}

// heading matches 1-6 '#' followed by a space. Levels deeper than 3 are clamped.
func heading(s string) (int, string, bool) {
	n := 0
	for n < len(s) && n < 6 && s[n] == '#' {
		n++
	}
	if n == 0 || n >= len(s) || s[n] != ' ' {
		return 0, "", false
	}
	level := n
	if level > 3 {
		level = 3
	}
	return level, strings.TrimSpace(s[n+1:]), true
}
