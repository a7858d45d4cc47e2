package store

import (
	"html"
	"strings"
)

// blockTags are elements whose boundaries become line breaks when
// converting entry bodies to plain text.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true,
	"blockquote": true, "tr": true,
}

// HTMLToText strips markup from an entry body and decodes entities.
// Entry bodies are produced by the journal's rich-text editor, so a
// full HTML parser is not needed: tags never nest inside attributes
// containing ">".
func HTMLToText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	tagStart := 0
	for i, r := range s {
		switch {
		case r == '<':
			inTag = true
			tagStart = i + 1
		case r == '>' && inTag:
			inTag = false
			if isBlockTag(s[tagStart:i]) {
				b.WriteByte('\n')
			}
		case !inTag:
			b.WriteRune(r)
		}
	}
	text := html.UnescapeString(b.String())
	return collapseBlankLines(text)
}

func isBlockTag(tag string) bool {
	tag = strings.TrimPrefix(tag, "/")
	tag = strings.TrimSuffix(tag, "/")
	if i := strings.IndexAny(tag, " \t\n"); i >= 0 {
		tag = tag[:i]
	}
	return blockTags[strings.ToLower(strings.TrimSpace(tag))]
}

// collapseBlankLines trims each line and squeezes runs of blank lines.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
