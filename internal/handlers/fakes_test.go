package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"pulse/internal/models"
	"pulse/internal/tokens"
)

// In-memory stores implementing the repository interfaces. The token fakes
// reproduce the store's compare-and-set semantics (mutate used_at only if
// currently null) under a mutex, so redemption races behave as in postgres.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User // by id
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("duplicate email")
		}
	}
	copy := *u
	r.users[u.ID] = &copy
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	copy := *u
	return &copy, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			copy := *u
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

func (r *fakeUserRepo) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return r.GetByEmail(ctx, identifier)
}

func (r *fakeUserRepo) ListAll(ctx context.Context) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func (r *fakeUserRepo) UpdateProfile(ctx context.Context, id string, req *models.UpdateUserRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user not found")
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Role != nil {
		u.Role = *req.Role
	}
	if req.Department != nil {
		u.Department = *req.Department
	}
	return nil
}

func (r *fakeUserRepo) UpdatePasswordHash(ctx context.Context, userID string, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("user not found")
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return fmt.Errorf("user not found")
	}
	delete(r.users, id)
	return nil
}

type fakeResetRepo struct {
	mu     sync.Mutex
	byHash map[string]*models.PasswordResetToken
	users  *fakeUserRepo
}

func newFakeResetRepo(users *fakeUserRepo) *fakeResetRepo {
	return &fakeResetRepo{byHash: make(map[string]*models.PasswordResetToken), users: users}
}

func (r *fakeResetRepo) Create(ctx context.Context, t *models.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *t
	r.byHash[t.TokenHash] = &copy
	return nil
}

func (r *fakeResetRepo) GetByTokenHash(ctx context.Context, hash string) (*models.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[hash]
	if !ok {
		return nil, tokens.ErrNotFound
	}
	copy := *t
	return &copy, nil
}

func (r *fakeResetRepo) Redeem(ctx context.Context, hash string, usedAt time.Time, newPasswordHash string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[hash]
	if !ok {
		return "", tokens.ErrNotFound
	}
	if t.UsedAt != nil {
		return "", tokens.ErrAlreadyUsed
	}
	if !usedAt.Before(t.ExpiresAt) {
		return "", tokens.ErrExpired
	}
	u, ok := r.users.users[t.UserID]
	if !ok {
		return "", fmt.Errorf("reset subject missing: %w", tokens.ErrNotFound)
	}
	// Burn and apply together, as the transactional store does.
	at := usedAt
	t.UsedAt = &at
	u.PasswordHash = newPasswordHash
	return t.UserID, nil
}

func (r *fakeResetRepo) ListSpent(ctx context.Context, now time.Time) ([]models.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PasswordResetToken
	for _, t := range r.byHash {
		if t.UsedAt != nil || !now.Before(t.ExpiresAt) {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeInviteRepo struct {
	mu     sync.Mutex
	byHash map[string]*models.Invitation
	users  *fakeUserRepo
}

func newFakeInviteRepo(users *fakeUserRepo) *fakeInviteRepo {
	return &fakeInviteRepo{byHash: make(map[string]*models.Invitation), users: users}
}

func (r *fakeInviteRepo) Create(ctx context.Context, inv *models.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *inv
	r.byHash[inv.TokenHash] = &copy
	return nil
}

func (r *fakeInviteRepo) GetByTokenHash(ctx context.Context, hash string) (*models.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byHash[hash]
	if !ok {
		return nil, tokens.ErrNotFound
	}
	copy := *inv
	return &copy, nil
}

func (r *fakeInviteRepo) Redeem(ctx context.Context, hash string, usedAt time.Time, newUser *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byHash[hash]
	if !ok {
		return nil, tokens.ErrNotFound
	}
	if inv.UsedAt != nil {
		return nil, tokens.ErrAlreadyUsed
	}
	if !usedAt.Before(inv.ExpiresAt) {
		return nil, tokens.ErrExpired
	}
	u := *newUser
	u.Email = inv.Email
	u.Role = inv.Role
	u.Department = inv.Department
	if err := r.users.Create(ctx, &u); err != nil {
		return nil, err
	}
	at := usedAt
	inv.UsedAt = &at
	return &u, nil
}

func (r *fakeInviteRepo) ListSpent(ctx context.Context, now time.Time) ([]models.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Invitation
	for _, inv := range r.byHash {
		if inv.UsedAt != nil || !now.Before(inv.ExpiresAt) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

type sentMail struct {
	to, subject, body string
}

func (m *captureMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var tokenPattern = regexp.MustCompile(`token=([0-9a-f]{64})`)

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("no mail captured")
	}
	match := tokenPattern.FindStringSubmatch(m.sent[len(m.sent)-1].body)
	if match == nil {
		t.Fatalf("no token link in mail body:\n%s", m.sent[len(m.sent)-1].body)
	}
	return match[1]
}
