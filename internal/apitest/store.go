package apitest

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authaudit/internal/apperrors"
	"github.com/nkiryanov/authaudit/internal/models"
)

// Export contains at most this many latest activity entries
const exportActivityLimit = 1000

type userRecord struct {
	user models.User

	// Empty for users created by code or OAuth sign in
	passwordHash string

	// Creation order
	seq int
}

type refreshRecord struct {
	userID    uuid.UUID
	expiresAt time.Time
	used      bool
}

type codeRecord struct {
	code      string
	expiresAt time.Time
	used      bool
}

// In-memory storage of the fake API
// Replaces the database: every method is safe for concurrent use
type memStore struct {
	mu sync.Mutex

	users   map[uuid.UUID]*userRecord
	userSeq int
	emails  map[string]uuid.UUID
	refresh map[string]*refreshRecord
	codes   map[uuid.UUID][]*codeRecord

	// Kept in creation order
	items []*models.DemoItem
	audit []models.AuditLog

	oauthStates map[string]struct{}
	oauthCodes  map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[uuid.UUID]*userRecord),
		emails:      make(map[string]uuid.UUID),
		refresh:     make(map[string]*refreshRecord),
		codes:       make(map[uuid.UUID][]*codeRecord),
		oauthStates: make(map[string]struct{}),
		oauthCodes:  make(map[string]string),
	}
}

// Create user
// If user with email exists already returns apperrors.ErrUserAlreadyExists
func (s *memStore) createUser(email string, passwordHash string, isAdmin bool) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[email]; ok {
		return models.User{}, apperrors.ErrUserAlreadyExists
	}

	u := models.User{
		ID:        uuid.New(),
		Email:     email,
		IsActive:  true,
		IsAdmin:   isAdmin,
		CreatedAt: time.Now().UTC(),
	}
	s.userSeq++
	s.users[u.ID] = &userRecord{user: u, passwordHash: passwordHash, seq: s.userSeq}
	s.emails[email] = u.ID

	return u, nil
}

// Returns the user and its password hash
func (s *memStore) userByEmail(email string) (models.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[email]
	if !ok {
		return models.User{}, "", apperrors.ErrUserNotFound
	}
	rec := s.users[id]
	return rec.user, rec.passwordHash, nil
}

func (s *memStore) userByID(id uuid.UUID) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return rec.user, nil
}

func (s *memStore) updateUser(id uuid.UUID, upd models.AdminUserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	if upd.IsActive != nil {
		rec.user.IsActive = *upd.IsActive
	}
	if upd.IsAdmin != nil {
		rec.user.IsAdmin = *upd.IsAdmin
	}
	return rec.user, nil
}

// Delete user with its items, tokens and codes
// Audit entries are kept but lose the user email
func (s *memStore) deleteUser(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return
	}
	delete(s.emails, rec.user.Email)
	delete(s.users, id)
	delete(s.codes, id)

	for token, r := range s.refresh {
		if r.userID == id {
			delete(s.refresh, token)
		}
	}
	s.items = slices.DeleteFunc(s.items, func(item *models.DemoItem) bool { return item.UserID == id })
}

// Page of users ordered by creation time
func (s *memStore) listUsers(page int, limit int) ([]models.User, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]*userRecord, 0, len(s.users))
	for _, rec := range s.users {
		recs = append(recs, rec)
	}
	slices.SortFunc(recs, func(a, b *userRecord) int { return a.seq - b.seq })

	all := make([]models.User, 0, len(recs))
	for _, rec := range recs {
		all = append(all, rec.user)
	}

	return paginate(all, page, limit), len(all)
}

func (s *memStore) saveRefresh(token string, userID uuid.UUID, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refresh[token] = &refreshRecord{userID: userID, expiresAt: expiresAt}
}

// Use token: return its user if it valid and mark as used
func (s *memStore) useRefresh(token string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.refresh[token]
	switch {
	case !ok:
		return uuid.Nil, apperrors.ErrRefreshTokenNotFound
	case rec.used:
		return uuid.Nil, apperrors.ErrRefreshTokenIsUsed
	case rec.expiresAt.Before(time.Now()):
		return uuid.Nil, apperrors.ErrRefreshTokenExpired
	}

	rec.used = true
	return rec.userID, nil
}

func (s *memStore) revokeRefresh(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.refresh[token]; ok {
		rec.used = true
	}
}

// Save new code for the user, previous codes can not be used any more
func (s *memStore) saveCode(userID uuid.UUID, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.codes[userID] {
		c.used = true
	}
	s.codes[userID] = append(s.codes[userID], &codeRecord{code: code, expiresAt: expiresAt})
}

func (s *memStore) useCode(userID uuid.UUID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, c := range s.codes[userID] {
		if c.code == code && !c.used && c.expiresAt.After(now) {
			c.used = true
			return nil
		}
	}
	return apperrors.ErrCodeInvalid
}

// Items of the user, newest first
func (s *memStore) listItems(userID uuid.UUID) []models.DemoItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]models.DemoItem, 0)
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].UserID == userID {
			items = append(items, *s.items[i])
		}
	}
	return items
}

func (s *memStore) createItem(userID uuid.UUID, data models.DemoItemCreate) models.DemoItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := &models.DemoItem{
		ID:          uuid.New(),
		Title:       data.Title,
		Description: data.Description,
		UserID:      userID,
		CreatedAt:   time.Now().UTC(),
	}
	s.items = append(s.items, item)
	return *item
}

// Must be called with lock held
func (s *memStore) ownedItem(id uuid.UUID, userID uuid.UUID) (int, error) {
	idx := slices.IndexFunc(s.items, func(item *models.DemoItem) bool { return item.ID == id })
	if idx < 0 {
		return -1, apperrors.ErrItemNotFound
	}
	if s.items[idx].UserID != userID {
		return -1, apperrors.ErrItemForeign
	}
	return idx, nil
}

func (s *memStore) getItem(id uuid.UUID, userID uuid.UUID) (models.DemoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.ownedItem(id, userID)
	if err != nil {
		return models.DemoItem{}, err
	}
	return *s.items[idx], nil
}

func (s *memStore) updateItem(id uuid.UUID, userID uuid.UUID, data models.DemoItemUpdate) (models.DemoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.ownedItem(id, userID)
	if err != nil {
		return models.DemoItem{}, err
	}

	item := s.items[idx]
	if data.Title != nil {
		item.Title = *data.Title
	}
	if data.Description != nil {
		item.Description = data.Description
	}
	now := time.Now().UTC()
	item.UpdatedAt = &now

	return *item, nil
}

func (s *memStore) deleteItem(id uuid.UUID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.ownedItem(id, userID)
	if err != nil {
		return err
	}
	s.items = slices.Delete(s.items, idx, idx+1)
	return nil
}

func (s *memStore) RecordAudit(_ context.Context, entry models.AuditLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, entry)
}

// Audit entries matching the filter, newest first
// Email and path match case-insensitive substrings, method matches exactly
func (s *memStore) auditLogs(f models.AuditLogFilter) models.AuditLogList {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]models.AuditLog, 0)
	for i := len(s.audit) - 1; i >= 0; i-- {
		entry := s.audit[i]

		if entry.UserID != nil {
			if rec, ok := s.users[*entry.UserID]; ok {
				email := rec.user.Email
				entry.UserEmail = &email
			}
		}

		if !matchAudit(entry, f) {
			continue
		}
		matched = append(matched, entry)
	}

	return models.AuditLogList{
		Items: paginate(matched, f.Page, f.Limit),
		Total: len(matched),
		Page:  f.Page,
		Limit: f.Limit,
	}
}

func matchAudit(entry models.AuditLog, f models.AuditLogFilter) bool {
	containsFold := func(s, substr string) bool {
		return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
	}

	switch {
	case f.UserEmail != "" && (entry.UserEmail == nil || !containsFold(*entry.UserEmail, f.UserEmail)):
		return false
	case f.Method != "" && entry.Method != f.Method:
		return false
	case f.Path != "" && !containsFold(entry.Path, f.Path):
		return false
	case !f.From.IsZero() && entry.CreatedAt.Before(f.From):
		return false
	case !f.To.IsZero() && entry.CreatedAt.After(f.To):
		return false
	}
	return true
}

// Latest activity of the user, newest first
func (s *memStore) userActivity(userID uuid.UUID) []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs := make([]models.AuditLog, 0)
	for i := len(s.audit) - 1; i >= 0 && len(logs) < exportActivityLimit; i-- {
		if id := s.audit[i].UserID; id != nil && *id == userID {
			logs = append(logs, s.audit[i])
		}
	}
	return logs
}

func (s *memStore) saveOAuthState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.oauthStates[state] = struct{}{}
}

// Verify and consume OAuth state
func (s *memStore) useOAuthState(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.oauthStates[state]
	delete(s.oauthStates, state)
	return ok
}

func (s *memStore) saveOAuthCode(code string, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.oauthCodes[code] = email
}

// Exchange authorization code for the email it was granted to, code is single use
func (s *memStore) useOAuthCode(code string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.oauthCodes[code]
	delete(s.oauthCodes, code)
	return email, ok
}

func paginate[T any](all []T, page int, limit int) []T {
	offset := (page - 1) * limit
	if offset >= len(all) {
		return []T{}
	}
	return all[offset:min(offset+limit, len(all))]
}
