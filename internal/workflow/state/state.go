// Package state holds the per-request record threaded through the workflow
// and the patch type every step returns.
//
// A State is a value. Steps never mutate it; they return a Patch and the
// engine produces the next State with Merge. Fields owned by the caller
// (request, sender, body, attachments, base URL) have no Patch counterpart
// and therefore cannot change once the State is built.
package state

import (
	"slices"

	"github.com/cloudwego/eino/schema"
)

// State is the per-request record.
type State struct {
	RequestID      string   `json:"request_id"`
	SenderID       string   `json:"sender_id"`
	BodyText       string   `json:"body_text"`
	AttachmentURLs []string `json:"attachment_urls"`
	ReplyBaseURL   string   `json:"reply_base_url"`

	HasAttachment   bool `json:"has_attachment"`
	IsQuery         bool `json:"is_query"`
	IsTargetSubject bool `json:"is_target_subject"`

	LocalAssetPath     *string  `json:"local_asset_path"`
	ExtractedTimestamp *string  `json:"extracted_timestamp"`
	ExtractedValue     *float64 `json:"extracted_value"`
	StoreWriteSuccess  bool     `json:"store_write_success"`

	QueryAnswer *string `json:"query_answer"`
	ChartPath   *string `json:"chart_path"`

	ConversationHistory []*schema.Message `json:"conversation_history"`
	FinalReplyText      string            `json:"final_reply_text"`

	// Visited lists executed step names in order. Owned by the engine.
	Visited []string `json:"visited"`
}

// Merge returns a new State with p applied. Keys p does not name keep their
// value; history is appended, never replaced.
func (s State) Merge(p Patch) State {
	next := s
	next.AttachmentURLs = slices.Clone(s.AttachmentURLs)
	next.Visited = slices.Clone(s.Visited)

	if p.HasAttachment != nil {
		next.HasAttachment = *p.HasAttachment
	}
	if p.IsQuery != nil {
		next.IsQuery = *p.IsQuery
	}
	if p.IsTargetSubject != nil {
		next.IsTargetSubject = *p.IsTargetSubject
	}
	if p.StoreWriteSuccess != nil {
		next.StoreWriteSuccess = *p.StoreWriteSuccess
	}
	if p.FinalReplyText != nil {
		next.FinalReplyText = *p.FinalReplyText
	}
	p.LocalAssetPath.apply(&next.LocalAssetPath)
	p.ExtractedTimestamp.apply(&next.ExtractedTimestamp)
	p.ExtractedValue.apply(&next.ExtractedValue)
	p.QueryAnswer.apply(&next.QueryAnswer)
	p.ChartPath.apply(&next.ChartPath)

	next.ConversationHistory = AppendHistory(s.ConversationHistory, p.AppendHistory...)
	return next
}

// Visit returns a copy of s with node appended to Visited.
func (s State) Visit(node string) State {
	next := s
	next.Visited = append(slices.Clone(s.Visited), node)
	return next
}

// AppendHistory returns a new slice holding history followed by msgs. The
// input slice is never written to.
func AppendHistory(history []*schema.Message, msgs ...*schema.Message) []*schema.Message {
	if len(msgs) == 0 {
		return slices.Clip(history)
	}
	return slices.Concat(history, msgs)
}

// FirstAttachment returns the first attachment URL, if any.
func (s State) FirstAttachment() (string, bool) {
	if len(s.AttachmentURLs) == 0 {
		return "", false
	}
	return s.AttachmentURLs[0], true
}

// Asset returns the local asset path when one is recorded.
func (s State) Asset() (string, bool) {
	return deref(s.LocalAssetPath)
}

// Timestamp returns the extracted reading timestamp when present.
func (s State) Timestamp() (string, bool) {
	return deref(s.ExtractedTimestamp)
}

// Value returns the extracted reading when present.
func (s State) Value() (float64, bool) {
	return deref(s.ExtractedValue)
}

// Answer returns the query answer when present.
func (s State) Answer() (string, bool) {
	return deref(s.QueryAnswer)
}

// Chart returns the generated chart path when present.
func (s State) Chart() (string, bool) {
	return deref(s.ChartPath)
}

func deref[T any](p *T) (T, bool) {
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}
