package model

import (
	"encoding/json"
	"fmt"
)

// File is a single rendition of an emote hosted on the 7TV CDN.
type File struct {
	Name   string `json:"name"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Format string `json:"format,omitempty"`
}

// Host describes where an emote's image files live.
type Host struct {
	URL   string `json:"url"`
	Files []File `json:"files"`
}

// Owner identifies the 7TV user who created an emote.
type Owner struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// EmoteData carries the emote's canonical name and hosting/ownership
// details inside an emote payload.
type EmoteData struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Host  Host   `json:"host"`
	Owner *Owner `json:"owner,omitempty"`
}

// EmotePayload is an active emote as it appears in change records and
// emote-set listings: the set-local name plus the underlying emote data.
type EmotePayload struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Data *EmoteData `json:"data,omitempty"`
}

// Actor is the user who performed an emote-set change.
type Actor struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Name returns the most presentable name for the actor.
func (a Actor) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// ChangeField is one entry in a change map: a value being pushed onto an
// emote set, or the old value being pulled off it.
type ChangeField struct {
	Key      string          `json:"key,omitempty"`
	Index    *int            `json:"index,omitempty"`
	OldValue json.RawMessage `json:"old_value,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// ChangeFieldSet decodes the pushed/pulled halves of a change map. The
// server has emitted both an array form and an object form keyed by
// arbitrary strings; both decode to an ordered slice here.
type ChangeFieldSet []ChangeField

// UnmarshalJSON accepts either a JSON array of change fields or an
// object whose values are change fields.
func (s *ChangeFieldSet) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*s = nil
		return nil
	}
	switch data[0] {
	case '[':
		var arr []ChangeField
		if err := json.Unmarshal(data, &arr); err != nil {
			return fmt.Errorf("change field array: %w", err)
		}
		*s = arr
		return nil
	case '{':
		var obj map[string]ChangeField
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("change field object: %w", err)
		}
		fields := make([]ChangeField, 0, len(obj))
		for _, f := range obj {
			fields = append(fields, f)
		}
		*s = fields
		return nil
	default:
		return fmt.Errorf("change field set: unexpected JSON token %q", data[0])
	}
}

// ChangeMap is the body of a dispatch event: the changed object's id,
// the kind of object, who changed it, and the pushed/pulled field sets.
type ChangeMap struct {
	ID     string         `json:"id"`
	Kind   int            `json:"kind"`
	Actor  *Actor         `json:"actor,omitempty"`
	Pushed ChangeFieldSet `json:"pushed,omitempty"`
	Pulled ChangeFieldSet `json:"pulled,omitempty"`
}

// ActorName returns the display name of the acting user, or empty when
// the dispatch carried no actor.
func (m ChangeMap) ActorName() string {
	if m.Actor == nil {
		return ""
	}
	return m.Actor.Name()
}
