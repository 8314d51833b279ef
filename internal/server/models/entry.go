// Package models defines the server-side records persisted in the database.
// Encrypted payloads live in the envelope store; rows here carry metadata.
package models

import "time"

const (
	MaxMoodLength  = 32
	MaxTitleLength = 255
)

// Entry is the metadata row of a diary entry. Its content envelope is stored
// under EntryStoreKey(ID, ContentHash); a new version gets a new key.
type Entry struct {
	ID          string
	UserID      string
	Date        time.Time
	DayOfWeek   int // 0=Monday .. 6=Sunday
	Mood        string
	Title       []byte // sealed envelope bytes
	ContentHash string
	MediaCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EntryFilter narrows ListEntries. Zero fields do not filter.
type EntryFilter struct {
	From      *time.Time
	To        *time.Time
	Mood      string
	DayOfWeek *int
	Limit     int
	Offset    int
}

// CalendarDay aggregates one day of a month view.
type CalendarDay struct {
	Date       time.Time
	EntryCount int
	MediaCount int
}

// MoodStats is the distribution of mood labels over a user's entries.
// Entries without a mood count towards Total only.
type MoodStats struct {
	Distribution map[string]int
	Total        int
}

// DayOfWeek converts time.Weekday (Sunday=0) to the Monday-first index.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// EntryText is the decrypted part of an entry.
type EntryText struct {
	Title   string
	Content string
}

func EntryStoreKey(id, hash string) string { return "entries/" + id + "/" + hash }
