package models

import "time"

// Media is an encrypted attachment. EntryID is a weak reference: deleting
// the entry leaves its media in place.
type Media struct {
	ID          string
	UserID      string
	EntryID     string
	MimeType    string
	Size        int64
	ContentHash string
	CreatedAt   time.Time
}

// MediaStorePrefix starts every media store key.
const MediaStorePrefix = "media/"

func MediaStoreKey(id, hash string) string { return MediaStorePrefix + id + "/" + hash }
