package state

import "github.com/cloudwego/eino/schema"

// Optional is a patch entry for a nullable field. The zero value leaves the
// field untouched; Null clears it; Some sets it.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some returns an Optional that sets the field to v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null returns an Optional that clears the field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o Optional[T]) apply(dst **T) {
	if !o.Set {
		return
	}
	if o.Value == nil {
		*dst = nil
		return
	}
	v := *o.Value
	*dst = &v
}

// Patch is a partial update returned by a step.
type Patch struct {
	HasAttachment     *bool
	IsQuery           *bool
	IsTargetSubject   *bool
	StoreWriteSuccess *bool
	FinalReplyText    *string

	LocalAssetPath     Optional[string]
	ExtractedTimestamp Optional[string]
	ExtractedValue     Optional[float64]
	QueryAnswer        Optional[string]
	ChartPath          Optional[string]

	// AppendHistory is appended to the conversation history.
	AppendHistory []*schema.Message
}

// Bool returns a pointer to b for patch fields.
func Bool(b bool) *bool {
	return &b
}

// String returns a pointer to s for patch fields.
func String(s string) *string {
	return &s
}

// ResetTransient returns a patch zeroing every per-turn field so values from
// an earlier turn cannot influence routing.
func ResetTransient() Patch {
	return Patch{
		IsTargetSubject:    Bool(false),
		StoreWriteSuccess:  Bool(false),
		LocalAssetPath:     Null[string](),
		ExtractedTimestamp: Null[string](),
		ExtractedValue:     Null[float64](),
		QueryAnswer:        Null[string](),
		ChartPath:          Null[string](),
	}
}
