package events

import (
	"encoding/json"

	"github.com/foamchat/emotewatch/internal/constants"
	"github.com/foamchat/emotewatch/internal/logger"
	"github.com/foamchat/emotewatch/internal/model"
)

// handleEmoteSetUpdate diffs an emote_set.update change map into an
// EmoteDelta and hands it to the registered handler. It never lets an
// error escape into the read loop; a bad change record is skipped and
// prior application state stays untouched.
func (c *Client) handleEmoteSetUpdate(body model.ChangeMap) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("emote set update handling panicked", "panic", r)
		}
	}()

	delta := buildDelta(body, c.TwitchChannelID(), c.log)
	if delta.Empty() {
		return
	}

	emotesAdded.Add(float64(len(delta.Added)))
	emotesRemoved.Add(float64(len(delta.Removed)))

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler == nil {
		c.log.Debug("emote delta discarded: no handler registered",
			"added", len(delta.Added), "removed", len(delta.Removed))
		return
	}
	handler(delta)
}

// buildDelta turns the pushed/pulled halves of a change map into ordered
// add/remove record lists. Pushed records resolve the best available CDN
// file; pulled records always reference the 1x file since the emote is
// leaving the set anyway.
func buildDelta(body model.ChangeMap, channelID string, log *logger.Logger) model.EmoteDelta {
	actor := body.ActorName()
	delta := model.EmoteDelta{ChannelID: channelID}

	for _, field := range body.Pushed {
		if len(field.Value) == 0 {
			continue
		}
		var payload model.EmotePayload
		if err := json.Unmarshal(field.Value, &payload); err != nil {
			if log != nil {
				log.Warn("skipping undecodable pushed emote", "error", err)
			}
			continue
		}
		delta.Added = append(delta.Added, model.RecordFromPayload(payload, actor))
	}

	for _, field := range body.Pulled {
		if len(field.OldValue) == 0 {
			continue
		}
		var payload model.EmotePayload
		if err := json.Unmarshal(field.OldValue, &payload); err != nil {
			if log != nil {
				log.Warn("skipping undecodable pulled emote", "error", err)
			}
			continue
		}
		delta.Removed = append(delta.Removed, removedRecord(payload, actor))
	}

	return delta
}

func removedRecord(p model.EmotePayload, actor string) model.EmoteRecord {
	name := p.Name
	var owner *model.Owner
	if p.Data != nil {
		if name == "" {
			name = p.Data.Name
		}
		owner = p.Data.Owner
	}
	return model.EmoteRecord{
		Name:         name,
		ID:           p.ID,
		URL:          model.CDNURL(p.ID, model.FallbackFileName),
		OriginalName: name,
		Creator:      model.CreatorName(owner),
		EmoteLink:    model.EmotePageURL(p.ID),
		Site:         constants.SiteLabel,
		Actor:        actor,
	}
}
