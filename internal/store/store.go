// Package store holds the live 7TV emote set for a channel, updated by
// emote-set deltas from the event client, plus a SQLite-backed history
// of emote changes.
package store

import (
	"sync"
	"time"

	"github.com/foamchat/emotewatch/internal/model"
)

// Stats summarises store activity for the status API.
type Stats struct {
	ChannelID    string    `json:"channel_id"`
	EmoteCount   int       `json:"emote_count"`
	TotalAdded   int       `json:"total_added"`
	TotalRemoved int       `json:"total_removed"`
	LastUpdate   time.Time `json:"last_update,omitzero"`
}

// Store is the mutex-guarded live emote set, keyed by emote name.
type Store struct {
	mu sync.RWMutex

	channelID string
	emotes    map[string]model.EmoteRecord

	totalAdded   int
	totalRemoved int
	lastUpdate   time.Time
}

// New creates an empty store for the given channel.
func New(channelID string) *Store {
	return &Store{
		channelID: channelID,
		emotes:    make(map[string]model.EmoteRecord),
	}
}

// Seed replaces the store contents with a full emote-set snapshot,
// typically fetched over REST at startup. Seeding does not count toward
// the add/remove totals.
func (s *Store) Seed(records []model.EmoteRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emotes = make(map[string]model.EmoteRecord, len(records))
	for _, r := range records {
		s.emotes[r.Name] = r
	}
	s.lastUpdate = time.Now()
}

// ApplyDelta merges an emote-set delta into the store and returns the
// number of records actually added and removed. Removals match on emote
// ID so a rename between snapshot and delta cannot strand an entry.
func (s *Store) ApplyDelta(delta model.EmoteDelta) (added, removed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range delta.Removed {
		if name, ok := s.nameForIDLocked(r.ID, r.Name); ok {
			delete(s.emotes, name)
			removed++
		}
	}
	for _, r := range delta.Added {
		s.emotes[r.Name] = r
		added++
	}

	s.totalAdded += added
	s.totalRemoved += removed
	if added > 0 || removed > 0 {
		s.lastUpdate = time.Now()
	}
	return added, removed
}

// Lookup returns the record for an emote name.
func (s *Store) Lookup(name string) (model.EmoteRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.emotes[name]
	return r, ok
}

// Snapshot returns a copy of all current emote records.
func (s *Store) Snapshot() []model.EmoteRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.EmoteRecord, 0, len(s.emotes))
	for _, r := range s.emotes {
		out = append(out, r)
	}
	return out
}

// Len returns the number of emotes currently in the set.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.emotes)
}

// Stats returns a snapshot of store activity counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		ChannelID:    s.channelID,
		EmoteCount:   len(s.emotes),
		TotalAdded:   s.totalAdded,
		TotalRemoved: s.totalRemoved,
		LastUpdate:   s.lastUpdate,
	}
}

func (s *Store) nameForIDLocked(id, fallbackName string) (string, bool) {
	if r, ok := s.emotes[fallbackName]; ok && r.ID == id {
		return fallbackName, true
	}
	for name, r := range s.emotes {
		if r.ID == id {
			return name, true
		}
	}
	if _, ok := s.emotes[fallbackName]; ok {
		return fallbackName, true
	}
	return "", false
}
