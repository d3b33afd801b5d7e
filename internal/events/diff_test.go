package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foamchat/emotewatch/internal/model"
)

func pushedField(t *testing.T, p model.EmotePayload) model.ChangeField {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return model.ChangeField{Key: "emotes", Value: raw}
}

func pulledField(t *testing.T, p model.EmotePayload) model.ChangeField {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return model.ChangeField{Key: "emotes", OldValue: raw}
}

func TestBuildDeltaAddedAndRemoved(t *testing.T) {
	body := model.ChangeMap{
		ID:    "set-1",
		Actor: &model.Actor{DisplayName: "Mod", Username: "mod_login"},
		Pushed: model.ChangeFieldSet{
			pushedField(t, model.EmotePayload{
				ID:   "E1",
				Name: "peepoHappy",
				Data: &model.EmoteData{
					Name:  "peepoHappy",
					Owner: &model.Owner{Username: "artist", DisplayName: "Artist"},
					Host: model.Host{Files: []model.File{
						{Name: "1x.avif", Width: 32, Height: 32},
						{Name: "4x.avif", Width: 128, Height: 128},
					}},
				},
			}),
		},
		Pulled: model.ChangeFieldSet{
			pulledField(t, model.EmotePayload{ID: "E2", Name: "peepoSad"}),
		},
	}

	delta := buildDelta(body, "42", testLogger(t))

	require.Len(t, delta.Added, 1)
	require.Len(t, delta.Removed, 1)
	assert.Equal(t, "42", delta.ChannelID)

	added := delta.Added[0]
	assert.Equal(t, "peepoHappy", added.Name)
	assert.Equal(t, "https://cdn.7tv.app/emote/E1/4x.avif", added.URL)
	assert.Equal(t, 128, added.Width)
	assert.Equal(t, "Artist", added.Creator)
	assert.Equal(t, "Mod", added.Actor)
	assert.Equal(t, "https://7tv.app/emotes/E1", added.EmoteLink)

	// Removed emotes always reference the 1x file.
	removed := delta.Removed[0]
	assert.Equal(t, "peepoSad", removed.Name)
	assert.Equal(t, "https://cdn.7tv.app/emote/E2/1x.avif", removed.URL)
	assert.Equal(t, "UNKNOWN", removed.Creator)
}

func TestBuildDeltaFormatFallback(t *testing.T) {
	body := model.ChangeMap{
		Pushed: model.ChangeFieldSet{
			pushedField(t, model.EmotePayload{
				ID:   "E3",
				Name: "OMEGALUL",
				Data: &model.EmoteData{
					Name: "OMEGALUL",
					Host: model.Host{Files: []model.File{
						{Name: "1x.avif", Width: 32},
						{Name: "2x.avif", Width: 64},
						{Name: "2x.webp", Width: 64},
					}},
				},
			}),
		},
	}

	delta := buildDelta(body, "", nil)
	require.Len(t, delta.Added, 1)
	assert.Equal(t, "https://cdn.7tv.app/emote/E3/2x.avif", delta.Added[0].URL)
}

func TestBuildDeltaNoAvifFilesUsesFallback(t *testing.T) {
	body := model.ChangeMap{
		Pushed: model.ChangeFieldSet{
			pushedField(t, model.EmotePayload{
				ID:   "E4",
				Name: "monkaS",
				Data: &model.EmoteData{
					Name: "monkaS",
					Host: model.Host{Files: []model.File{{Name: "4x.webp", Width: 128}}},
				},
			}),
		},
	}

	delta := buildDelta(body, "", nil)
	require.Len(t, delta.Added, 1)
	assert.Equal(t, "https://cdn.7tv.app/emote/E4/1x.avif", delta.Added[0].URL)
}

func TestBuildDeltaObjectFormPulled(t *testing.T) {
	// The server has emitted pulled as an object keyed by arbitrary
	// strings rather than an array.
	rawBody := []byte(`{
		"id": "set-1",
		"pulled": {
			"0": {"key": "emotes", "old_value": {"id": "E5", "name": "Sadge"}}
		}
	}`)

	var body model.ChangeMap
	require.NoError(t, json.Unmarshal(rawBody, &body))

	delta := buildDelta(body, "", nil)
	require.Len(t, delta.Removed, 1)
	assert.Equal(t, "Sadge", delta.Removed[0].Name)
	assert.Equal(t, "https://cdn.7tv.app/emote/E5/1x.avif", delta.Removed[0].URL)
}

func TestBuildDeltaSkipsUndecodableRecords(t *testing.T) {
	body := model.ChangeMap{
		Pushed: model.ChangeFieldSet{
			{Key: "emotes", Value: json.RawMessage(`[1,2,3]`)},
			pushedField(t, model.EmotePayload{ID: "E6", Name: "Clap"}),
		},
		Pulled: model.ChangeFieldSet{
			{Key: "emotes"}, // no old_value at all
		},
	}

	delta := buildDelta(body, "", testLogger(t))
	require.Len(t, delta.Added, 1)
	assert.Equal(t, "Clap", delta.Added[0].Name)
	assert.Empty(t, delta.Removed)
}

func TestHandleEmoteSetUpdateWithoutHandler(t *testing.T) {
	c := New(Options{Log: testLogger(t)})

	// Must not panic with no handler registered.
	c.handleEmoteSetUpdate(model.ChangeMap{
		Pushed: model.ChangeFieldSet{
			pushedField(t, model.EmotePayload{ID: "E7", Name: "LULW"}),
		},
	})
}

func TestHandleEmoteSetUpdateEmptyDelta(t *testing.T) {
	c := New(Options{Log: testLogger(t)})

	called := false
	c.SetUpdateHandler(func(model.EmoteDelta) { called = true })
	c.handleEmoteSetUpdate(model.ChangeMap{ID: "set-1"})

	assert.False(t, called)
}
