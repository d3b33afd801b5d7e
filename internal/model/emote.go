// Package model defines the emote data model shared between the 7TV
// event client, the REST client, the live emote store, and the status
// server: emote records, emote-set deltas, and the raw 7TV payload
// shapes they are decoded from.
package model

import (
	"fmt"

	"github.com/foamchat/emotewatch/internal/constants"
)

// cdnFormatPreference lists host file names in descending resolution
// order. The first file present on the emote wins.
var cdnFormatPreference = []string{"4x.avif", "3x.avif", "2x.avif", "1x.avif"}

// FallbackFileName is used when none of the preferred formats is listed,
// and for removed emotes where resolution no longer matters.
const FallbackFileName = "1x.avif"

// EmoteRecord is a single emote as consumed by the store and the chat
// annotator. URL points at the highest-resolution CDN file available.
type EmoteRecord struct {
	Name         string `json:"name"`
	ID           string `json:"id"`
	URL          string `json:"url"`
	OriginalName string `json:"original_name"`
	Creator      string `json:"creator"`
	EmoteLink    string `json:"emote_link"`
	Site         string `json:"site"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Actor        string `json:"actor,omitempty"`
}

// EmoteDelta is the decoded result of a single emote_set.update dispatch:
// the emotes added to and removed from the set, and the Twitch channel
// the set belongs to.
type EmoteDelta struct {
	Added     []EmoteRecord `json:"added"`
	Removed   []EmoteRecord `json:"removed"`
	ChannelID string        `json:"channel_id"`
}

// Empty reports whether the delta carries no changes.
func (d EmoteDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// BestFile returns the preferred CDN file from the host file list,
// falling back to FallbackFileName when no preferred format is present.
func BestFile(files []File) File {
	for _, want := range cdnFormatPreference {
		for _, f := range files {
			if f.Name == want {
				return f
			}
		}
	}
	return File{Name: FallbackFileName}
}

// CDNURL builds the full CDN URL for an emote file.
func CDNURL(emoteID, fileName string) string {
	if fileName == "" {
		fileName = FallbackFileName
	}
	return fmt.Sprintf("%s/%s/%s", constants.SevenTVCDNURL, emoteID, fileName)
}

// EmotePageURL builds the human-facing detail page link for an emote.
func EmotePageURL(emoteID string) string {
	return fmt.Sprintf("%s/%s", constants.SevenTVEmotePageURL, emoteID)
}

// CreatorName resolves the display name for an emote owner, preferring
// the display name, then the username, then the unknown sentinel.
func CreatorName(owner *Owner) string {
	if owner != nil {
		if owner.DisplayName != "" {
			return owner.DisplayName
		}
		if owner.Username != "" {
			return owner.Username
		}
	}
	return constants.UnknownCreator
}

// RecordFromPayload builds an EmoteRecord from a full emote payload,
// resolving the best available CDN file. actor is the user who made the
// change, empty for REST-seeded records.
func RecordFromPayload(p EmotePayload, actor string) EmoteRecord {
	name := p.Name
	var (
		owner         *Owner
		originalName  string
		width, height int
		fileName      string
	)
	if p.Data != nil {
		originalName = p.Data.Name
		owner = p.Data.Owner
		best := BestFile(p.Data.Host.Files)
		fileName = best.Name
		width, height = best.Width, best.Height
		if name == "" {
			name = p.Data.Name
		}
	}
	if originalName == "" {
		originalName = name
	}
	return EmoteRecord{
		Name:         name,
		ID:           p.ID,
		URL:          CDNURL(p.ID, fileName),
		OriginalName: originalName,
		Creator:      CreatorName(owner),
		EmoteLink:    EmotePageURL(p.ID),
		Site:         constants.SiteLabel,
		Width:        width,
		Height:       height,
		Actor:        actor,
	}
}
