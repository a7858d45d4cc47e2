package store

import (
	"fmt"
	"strings"
	"time"
)

const threadTimeLayout = time.RFC1123

// ThreadText renders the entry at path together with its replies as a
// single plain-text block: the root body first, then each reply in
// thread order. Unreadable replies are skipped; an unreadable root is
// an error.
func (s *FileStore) ThreadText(path string) (string, error) {
	root, err := s.ReadEntry(path)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "First entry at %s:\n%s", root.CreatedAt.Format(threadTimeLayout), root.Body)

	for _, replyPath := range root.Replies {
		reply, err := s.ReadEntry(replyPath)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "\n\nReply at %s:\n%s", reply.CreatedAt.Format(threadTimeLayout), reply.Body)
	}
	return b.String(), nil
}
