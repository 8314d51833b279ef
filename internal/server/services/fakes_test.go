package services

import (
	"context"
	"database/sql"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/cryptox"
	"github.com/dmitrijs2005/diarykeeper/internal/dbx"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/entries"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/keymaterial"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/media"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/recovery"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/diarykeeper/internal/server/store"
)

// -------- fake database --------

// fakeDB runs transactions inline. The fake repositories never touch the
// embedded DBTX. With data set, a failed transaction rolls data back.
type fakeDB struct {
	dbx.DBTX
	data *fakeData
	txs  atomic.Int32
}

func (d *fakeDB) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	d.txs.Add(1)
	if d.data == nil {
		return fn(ctx, d)
	}
	saved := d.data.snapshot()
	err := fn(ctx, d)
	if err != nil {
		d.data.restore(saved)
	}
	return err
}

// fakeData is the shared state behind every fake repository.
type fakeData struct {
	mu        sync.Mutex
	users     map[string]models.User
	materials map[string]models.KeyMaterial
	entries   map[string]models.Entry
	media     map[string]models.Media
	recovery  map[string]models.RecoveryCredential
	fail      map[string]error
}

func newFakeData() *fakeData {
	return &fakeData{
		users:     map[string]models.User{},
		materials: map[string]models.KeyMaterial{},
		entries:   map[string]models.Entry{},
		media:     map[string]models.Media{},
		recovery:  map[string]models.RecoveryCredential{},
		fail:      map[string]error{},
	}
}

func (d *fakeData) snapshot() *fakeData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &fakeData{
		users:     maps.Clone(d.users),
		materials: maps.Clone(d.materials),
		entries:   maps.Clone(d.entries),
		media:     maps.Clone(d.media),
		recovery:  maps.Clone(d.recovery),
	}
}

func (d *fakeData) restore(saved *fakeData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users, d.materials, d.entries = saved.users, saved.materials, saved.entries
	d.media, d.recovery = saved.media, saved.recovery
}

// lock takes the data lock and returns the injected error for op, if any.
func (d *fakeData) lock(op string) error {
	d.mu.Lock()
	return d.fail[op]
}

func (d *fakeData) entry(id string) models.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries[id]
}

func (d *fakeData) setEntry(e models.Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[e.ID] = e
}

// -------- fake repository manager --------

type fakeRepoManager struct {
	data  *fakeData
	calls atomic.Int32
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{data: newFakeData()}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository {
	m.calls.Add(1)
	return &fakeUsers{m.data}
}

func (m *fakeRepoManager) KeyMaterial(dbx.DBTX) keymaterial.Repository {
	m.calls.Add(1)
	return &fakeMaterials{m.data}
}

func (m *fakeRepoManager) Entries(dbx.DBTX) entries.Repository {
	m.calls.Add(1)
	return &fakeEntries{m.data}
}

func (m *fakeRepoManager) Media(dbx.DBTX) media.Repository {
	m.calls.Add(1)
	return &fakeMedia{m.data}
}

func (m *fakeRepoManager) Recovery(dbx.DBTX) recovery.Repository {
	m.calls.Add(1)
	return &fakeRecovery{m.data}
}

// -------- users --------

type fakeUsers struct{ d *fakeData }

func (r *fakeUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if err := r.d.lock("users.Create"); err != nil {
		r.d.mu.Unlock()
		return nil, err
	}
	defer r.d.mu.Unlock()
	for _, existing := range r.d.users {
		if existing.UserName == u.UserName {
			return nil, common.ErrUserExists
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	r.d.users[u.ID] = *u
	return u, nil
}

func (r *fakeUsers) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	if err := r.d.lock("users.Get"); err != nil {
		r.d.mu.Unlock()
		return nil, err
	}
	defer r.d.mu.Unlock()
	for _, u := range r.d.users {
		if u.UserName == login {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.d.lock("")
	defer r.d.mu.Unlock()
	u, ok := r.d.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *fakeUsers) UpdatePassword(ctx context.Context, userID string, hash, salt []byte) error {
	if err := r.d.lock("users.UpdatePassword"); err != nil {
		r.d.mu.Unlock()
		return err
	}
	defer r.d.mu.Unlock()
	u, ok := r.d.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash, u.PasswordSalt = hash, salt
	r.d.users[userID] = u
	return nil
}

// -------- key material --------

type fakeMaterials struct{ d *fakeData }

func (r *fakeMaterials) Get(ctx context.Context, userID string) (*models.KeyMaterial, error) {
	r.d.lock("")
	defer r.d.mu.Unlock()
	m, ok := r.d.materials[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &m, nil
}

func (r *fakeMaterials) Create(ctx context.Context, m *models.KeyMaterial) error {
	r.d.lock("")
	defer r.d.mu.Unlock()
	if _, ok := r.d.materials[m.UserID]; ok {
		return common.ErrAlreadySetUp
	}
	r.d.materials[m.UserID] = *m
	return nil
}

func (r *fakeMaterials) Replace(ctx context.Context, m *models.KeyMaterial) error {
	if err := r.d.lock("keymaterial.Replace"); err != nil {
		r.d.mu.Unlock()
		return err
	}
	defer r.d.mu.Unlock()
	if _, ok := r.d.materials[m.UserID]; !ok {
		return common.ErrNotSetUp
	}
	r.d.materials[m.UserID] = *m
	return nil
}

// -------- entries --------

type fakeEntries struct{ d *fakeData }

func (r *fakeEntries) Create(ctx context.Context, e *models.Entry) error {
	if err := r.d.lock("entries.Create"); err != nil {
		r.d.mu.Unlock()
		return err
	}
	defer r.d.mu.Unlock()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	r.d.entries[e.ID] = *e
	return nil
}

func (r *fakeEntries) Get(ctx context.Context, userID, id string) (*models.Entry, error) {
	r.d.lock("")
	defer r.d.mu.Unlock()
	e, ok := r.d.entries[id]
	if !ok || e.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return &e, nil
}

func (r *fakeEntries) Update(ctx context.Context, e *models.Entry, prevHash string) error {
	if err := r.d.lock("entries.Update"); err != nil {
		r.d.mu.Unlock()
		return err
	}
	defer r.d.mu.Unlock()
	old, ok := r.d.entries[e.ID]
	if !ok || old.UserID != e.UserID || old.ContentHash != prevHash {
		return common.ErrConflict
	}
	e.UpdatedAt = time.Now()
	r.d.entries[e.ID] = *e
	return nil
}

func (r *fakeEntries) Delete(ctx context.Context, userID, id string) (string, error) {
	r.d.lock("")
	defer r.d.mu.Unlock()
	e, ok := r.d.entries[id]
	if !ok || e.UserID != userID {
		return "", common.ErrorNotFound
	}
	delete(r.d.entries, id)
	return e.ContentHash, nil
}

func (r *fakeEntries) List(ctx context.Context, userID string, f models.EntryFilter) ([]*models.Entry, error) {
	r.d.lock("")
	defer r.d.mu.Unlock()
	var out []*models.Entry
	for _, e := range r.d.entries {
		switch {
		case e.UserID != userID,
			f.From != nil && e.Date.Before(*f.From),
			f.To != nil && e.Date.After(*f.To),
			f.Mood != "" && e.Mood != f.Mood,
			f.DayOfWeek != nil && e.DayOfWeek != *f.DayOfWeek:
			continue
		}
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *fakeEntries) ListIDs(ctx context.Context, userID string) ([]string, error) {
	r.d.lock("")
	defer r.d.mu.Unlock()
	var ids []string
	for id, e := range r.d.entries {
		if e.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakeEntries) Reseal(ctx context.Context, userID, id, oldHash, newHash string, title []byte) error {
	if err := r.d.lock("entries.Reseal"); err != nil {
		r.d.mu.Unlock()
		return err
	}
	defer r.d.mu.Unlock()
	e, ok := r.d.entries[id]
	if !ok || e.UserID != userID || e.ContentHash != oldHash {
		return common.ErrConflict
	}
	e.Title, e.ContentHash = title, newHash
	r.d.entries[id] = e
	return nil
}

func (r *fakeEntries) AdjustMediaCount(ctx context.Context, userID, id string, delta int) error {
	r.d.lock("")
	defer r.d.mu.Unlock()
	e, ok := r.d.entries[id]
	if !ok || e.UserID != userID {
		return nil
	}
	e.MediaCount = max(e.MediaCount+delta, 0)
	r.d.entries[id] = e
	return nil
}

func (r *fakeEntries) Calendar(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarDay, error) {
	r.d.lock("")
	defer r.d.mu.Unlock()
	byDay := map[time.Time]*models.CalendarDay{}
	for _, e := range r.d.entries {
		if e.UserID != userID || e.Date.Before(from) || !e.Date.Before(to) {
			continue
		}
		d, ok := byDay[e.Date]
		if !ok {
			d = &models.CalendarDay{Date: e.Date}
			byDay[e.Date] = d
		}
		d.EntryCount++
		d.MediaCount += e.MediaCount
	}
	out := make([]models.CalendarDay, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *fakeEntries) MoodStats(ctx context.Context, userID string) (*models.MoodStats, error) {
	r.d.lock("")
	defer r.d.mu.Unlock()
	stats := &models.MoodStats{Distribution: map[string]int{}}
	for _, e := range r.d.entries {
		if e.UserID != userID {
			continue
		}
		stats.Total++
		if e.Mood != "" {
			stats.Distribution[e.Mood]++
		}
	}
	return stats, nil
}

// -------- media --------

type fakeMedia struct{ d *fakeData }

func (r *fakeMedia) Create(ctx context.Context, m *models.Media) error {
	if err := r.d.lock("media.Create"); err != nil {
		r.d.mu.Unlock()
		return err
	}
	defer r.d.mu.Unlock()
	m.CreatedAt = time.Now()
	r.d.media[m.ID] = *m
	return nil
}

func (r *fakeMedia) Get(ctx context.Context, userID, id string) (*models.Media, error) {
	r.d.lock("")
	defer r.d.mu.Unlock()
	m, ok := r.d.media[id]
	if !ok || m.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return &m, nil
}

func (r *fakeMedia) ListByEntry(ctx context.Context, userID, entryID string) ([]*models.Media, error) {
	r.d.lock("")
	defer r.d.mu.Unlock()
	var out []*models.Media
	for _, m := range r.d.media {
		if m.UserID == userID && m.EntryID == entryID {
			out = append(out, &m)
		}
	}
	return out, nil
}

func (r *fakeMedia) ListIDs(ctx context.Context, userID string) ([]string, error) {
	r.d.lock("")
	defer r.d.mu.Unlock()
	var ids []string
	for id, m := range r.d.media {
		if m.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakeMedia) Delete(ctx context.Context, userID, id string) error {
	r.d.lock("")
	defer r.d.mu.Unlock()
	m, ok := r.d.media[id]
	if !ok || m.UserID != userID {
		return common.ErrorNotFound
	}
	delete(r.d.media, id)
	return nil
}

func (r *fakeMedia) Reseal(ctx context.Context, userID, id, oldHash, newHash string) error {
	if err := r.d.lock("media.Reseal"); err != nil {
		r.d.mu.Unlock()
		return err
	}
	defer r.d.mu.Unlock()
	m, ok := r.d.media[id]
	if !ok || m.UserID != userID || m.ContentHash != oldHash {
		return common.ErrConflict
	}
	m.ContentHash = newHash
	r.d.media[id] = m
	return nil
}

// -------- recovery --------

type fakeRecovery struct{ d *fakeData }

func (r *fakeRecovery) Save(ctx context.Context, c *models.RecoveryCredential) error {
	if err := r.d.lock("recovery.Save"); err != nil {
		r.d.mu.Unlock()
		return err
	}
	defer r.d.mu.Unlock()
	r.d.recovery[c.UserID] = *c
	return nil
}

func (r *fakeRecovery) Get(ctx context.Context, userID string) (*models.RecoveryCredential, error) {
	r.d.lock("")
	defer r.d.mu.Unlock()
	c, ok := r.d.recovery[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &c, nil
}

func (r *fakeRecovery) MarkUsed(ctx context.Context, userID string, at time.Time) error {
	r.d.lock("")
	defer r.d.mu.Unlock()
	c, ok := r.d.recovery[userID]
	if !ok {
		return common.ErrorNotFound
	}
	c.LastUsedAt = &at
	r.d.recovery[userID] = c
	return nil
}

// -------- envelope store --------

// countingStore records every call that reaches the envelope store.
type countingStore struct {
	*store.MemoryStore
	gets, puts, deletes atomic.Int32
	putBudget           atomic.Int32 // puts allowed before one failure; <0 means never fail
	onPut               func(id string)

	mu  sync.Mutex
	ops []string
}

func (s *countingStore) record(op string) {
	s.mu.Lock()
	s.ops = append(s.ops, op)
	s.mu.Unlock()
}

func (s *countingStore) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func newCountingStore() *countingStore {
	s := &countingStore{MemoryStore: store.NewMemoryStore()}
	s.putBudget.Store(-1)
	return s
}

func (s *countingStore) Get(ctx context.Context, id string) (*cryptox.Envelope, error) {
	s.gets.Add(1)
	s.record("get")
	return s.MemoryStore.Get(ctx, id)
}

func (s *countingStore) Put(ctx context.Context, id string, env *cryptox.Envelope) error {
	s.puts.Add(1)
	s.record("put")
	if s.onPut != nil {
		s.onPut(id)
	}
	switch n := s.putBudget.Load(); {
	case n == 0:
		s.putBudget.Store(-1)
		return errStoreDown
	case n > 0:
		s.putBudget.Add(-1)
	}
	return s.MemoryStore.Put(ctx, id, env)
}

func (s *countingStore) Delete(ctx context.Context, id string) error {
	s.deletes.Add(1)
	s.record("delete")
	return s.MemoryStore.Delete(ctx, id)
}

func (s *countingStore) total() int32 {
	return s.gets.Load() + s.puts.Load() + s.deletes.Load()
}

func (s *countingStore) reset() {
	s.gets.Store(0)
	s.puts.Store(0)
	s.deletes.Store(0)
	s.mu.Lock()
	s.ops = nil
	s.mu.Unlock()
}
