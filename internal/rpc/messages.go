package rpc

import "time"

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

type Empty struct{}

type PingResponse struct {
	Status string `cbor:"status"`
}

// --- account ---

type RegisterRequest struct {
	Username string `cbor:"username"`
	Password string `cbor:"password"`
}

type RegisterResponse struct {
	UserID string `cbor:"user_id"`
}

type LoginRequest struct {
	Username string `cbor:"username"`
	Password string `cbor:"password"`
}

type LoginResponse struct {
	AccessToken string `cbor:"access_token"`
}

// ChangeLoginPasswordRequest changes the account password, not the diary's.
type ChangeLoginPasswordRequest struct {
	CurrentPassword string `cbor:"current_password"`
	NewPassword     string `cbor:"new_password"`
}

// --- lock lifecycle ---

type StatusResponse struct {
	Status           string     `cbor:"status"`
	RemainingSeconds int64      `cbor:"remaining_seconds,omitempty"`
	UnlockedAt       *time.Time `cbor:"unlocked_at,omitempty"`
}

type SetupRequest struct {
	Password []byte `cbor:"password"`
	Hint     string `cbor:"hint,omitempty"`
}

type UnlockRequest struct {
	Password []byte `cbor:"password"`
}

type HintResponse struct {
	Hint string `cbor:"hint"`
}

type ChangePasswordRequest struct {
	OldPassword []byte `cbor:"old_password"`
	NewPassword []byte `cbor:"new_password"`
}

// --- entries ---

type Entry struct {
	ID         string    `cbor:"id"`
	Date       string    `cbor:"date"`
	DayOfWeek  int       `cbor:"day_of_week"`
	Mood       string    `cbor:"mood,omitempty"`
	MediaCount int       `cbor:"media_count"`
	CreatedAt  time.Time `cbor:"created_at"`
	UpdatedAt  time.Time `cbor:"updated_at"`
}

type CreateEntryRequest struct {
	Date    string `cbor:"date"`
	Title   string `cbor:"title"`
	Mood    string `cbor:"mood,omitempty"`
	Content string `cbor:"content"`
}

type EntryResponse struct {
	Entry Entry `cbor:"entry"`
}

type IDRequest struct {
	ID string `cbor:"id"`
}

type ReadEntryResponse struct {
	Entry   Entry  `cbor:"entry"`
	Title   string `cbor:"title"`
	Content string `cbor:"content"`
}

// UpdateEntryRequest replaces the content; a nil Title or Mood keeps the
// old one.
type UpdateEntryRequest struct {
	ID      string  `cbor:"id"`
	Title   *string `cbor:"title,omitempty"`
	Content string  `cbor:"content"`
	Mood    *string `cbor:"mood,omitempty"`
}

type ListEntriesRequest struct {
	From      string `cbor:"from,omitempty"`
	To        string `cbor:"to,omitempty"`
	Mood      string `cbor:"mood,omitempty"`
	DayOfWeek *int   `cbor:"day_of_week,omitempty"`
	Limit     int    `cbor:"limit,omitempty"`
	Offset    int    `cbor:"offset,omitempty"`
}

type ListEntriesResponse struct {
	Entries []Entry `cbor:"entries"`
}

type CalendarRequest struct {
	Year  int `cbor:"year"`
	Month int `cbor:"month"`
}

type CalendarDay struct {
	Date       string `cbor:"date"`
	EntryCount int    `cbor:"entry_count"`
	MediaCount int    `cbor:"media_count"`
}

type CalendarResponse struct {
	Days []CalendarDay `cbor:"days"`
}

type MoodStatsResponse struct {
	Distribution map[string]int `cbor:"distribution"`
	Total        int            `cbor:"total"`
}

// --- media ---

type Media struct {
	ID        string    `cbor:"id"`
	EntryID   string    `cbor:"entry_id"`
	MimeType  string    `cbor:"mime_type"`
	Size      int64     `cbor:"size"`
	CreatedAt time.Time `cbor:"created_at"`
}

type AttachMediaRequest struct {
	EntryID  string `cbor:"entry_id"`
	MimeType string `cbor:"mime_type"`
	Data     []byte `cbor:"data"`
}

type MediaResponse struct {
	Media Media `cbor:"media"`
}

type ReadMediaResponse struct {
	Media Media  `cbor:"media"`
	Data  []byte `cbor:"data"`
}

type ListMediaRequest struct {
	EntryID string `cbor:"entry_id"`
}

type ListMediaResponse struct {
	Media []Media `cbor:"media"`
}

// --- recovery ---

type SetupRecoveryRequest struct {
	Questions []string `cbor:"questions"`
	Answers   []string `cbor:"answers"`
}

type SetupRecoveryResponse struct {
	RecoveryKey string `cbor:"recovery_key"`
}

type RecoveryQuestionsRequest struct {
	Username string `cbor:"username"`
}

type RecoveryQuestionsResponse struct {
	Questions []string `cbor:"questions"`
}

type ResetWithAnswersRequest struct {
	Username    string   `cbor:"username"`
	Answers     []string `cbor:"answers"`
	NewPassword string   `cbor:"new_password"`
}

type ResetWithRecoveryKeyRequest struct {
	Username    string `cbor:"username"`
	RecoveryKey string `cbor:"recovery_key"`
	NewPassword string `cbor:"new_password"`
}
