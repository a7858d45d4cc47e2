// Package models defines core data structures for journal entries, queries, and search results.
package models

import "time"

// Entry is the indexed metadata of one journal post or reply.
// Path is the journal-relative file path and is the entry's identity
// everywhere in the engine.
type Entry struct {
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	IsReply     bool      `json:"isReply"`
	Highlight   string    `json:"highlight,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	// Replies holds journal-relative paths of reply entries, in thread order.
	// Only thread roots (IsReply == false) carry replies.
	Replies []string `json:"replies,omitempty"`
	// Fingerprint is a content hash of the entry file, used to detect
	// on-disk changes between loads. Not part of the front matter.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// HasHighlight reports whether the entry carries a highlight color.
func (e *Entry) HasHighlight() bool {
	return e.Highlight != ""
}

// HasAttachments reports whether the entry has at least one attachment.
func (e *Entry) HasAttachments() bool {
	return len(e.Attachments) > 0
}

// EntryBody is an entry's metadata together with its plain-text body,
// as produced by the document store when reading a file.
type EntryBody struct {
	Entry
	Body string `json:"body"`
}
