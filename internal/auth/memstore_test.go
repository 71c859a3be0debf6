package auth

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth/internal/account"
	"github.com/ovaphlow/pitchfork/service-auth/internal/notify"
	otpentity "github.com/ovaphlow/pitchfork/service-auth/internal/otp/entity"
	"github.com/ovaphlow/pitchfork/service-auth/internal/provider"
	profileentity "github.com/ovaphlow/pitchfork/service-auth/internal/profile/entity"
	tokenentity "github.com/ovaphlow/pitchfork/service-auth/internal/token/entity"
	userentity "github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
)

// memStore is an in-memory Store with the same atomicity as the Postgres one.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]*userentity.User
	profiles map[int64]*profileentity.Profile
	roles    map[string]int64
	otps     map[string]*otpentity.Code
	refresh  map[string]*tokenentity.RefreshToken
	history  []userentity.LoginHistory
	otpSeq   int64
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]*userentity.User{},
		profiles: map[int64]*profileentity.Profile{},
		roles:    map[string]int64{"super_admin": 1, "admin": 2, "agent": 3, "landlord": 4, "tenant": 5},
		otps:     map[string]*otpentity.Code{},
		refresh:  map[string]*tokenentity.RefreshToken{},
	}
}

func cloneUser(u *userentity.User) *userentity.User {
	cp := *u
	return &cp
}

func (m *memStore) UserByEmail(_ context.Context, email string) (*userentity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email != nil && strings.EqualFold(*u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) UserByPhone(_ context.Context, phone string) (*userentity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Phone != nil && *u.Phone == phone {
			return cloneUser(u), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) UserByID(_ context.Context, id int64) (*userentity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneUser(u), nil
}

func (m *memStore) RoleIDByName(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.roles[name]
	if !ok {
		return 0, sql.ErrNoRows
	}
	return id, nil
}

func (m *memStore) CreateAccount(_ context.Context, u *userentity.User, p *profileentity.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if u.Email != nil && other.Email != nil && strings.EqualFold(*u.Email, *other.Email) {
			return ErrIdentifierTaken
		}
		if u.Phone != nil && other.Phone != nil && *u.Phone == *other.Phone {
			return ErrIdentifierTaken
		}
	}
	m.users[u.ID] = cloneUser(u)
	cp := *p
	m.profiles[u.ID] = &cp
	return nil
}

func (m *memStore) IncrementLoginAttempts(_ context.Context, userID int64, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, sql.ErrNoRows
	}
	if u.LockedUntil != nil && !u.LockedUntil.After(now) {
		u.LoginAttempts = 1
		u.LockedUntil = nil
	} else {
		u.LoginAttempts++
	}
	return u.LoginAttempts, nil
}

func (m *memStore) LockUser(_ context.Context, userID int64, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.LockedUntil = &until
	return nil
}

func (m *memStore) CompleteLogin(_ context.Context, rec LoginRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[rec.UserID]
	if !ok {
		return sql.ErrNoRows
	}
	if rec.ResetLockout {
		if u.LockedUntil != nil && u.LockedUntil.After(rec.At) {
			return ErrAccountLocked
		}
		u.LoginAttempts = 0
		u.LockedUntil = nil
	}
	at := rec.At
	u.LastLoginAt = &at
	m.history = append(m.history, *rec.History)
	cp := *rec.Refresh
	m.refresh[cp.Token] = &cp
	return nil
}

func (m *memStore) AppendLoginHistory(_ context.Context, h *userentity.LoginHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *h)
	return nil
}

func (m *memStore) LoginHistory(_ context.Context, userID int64, limit int) ([]userentity.LoginHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []userentity.LoginHistory
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		h := m.history[i]
		if h.UserID != nil && *h.UserID == userID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memStore) MarkVerified(_ context.Context, userID int64, channel otpentity.Channel) (*userentity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	account.ApplyVerification(u, string(channel))
	return cloneUser(u), nil
}

func (m *memStore) UpdatePassword(_ context.Context, userID int64, hash, algo string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash, u.PasswordAlgo = &hash, &algo
	u.LoginAttempts, u.LockedUntil = 0, nil
	m.revokeAllLocked(userID, at)
	return nil
}

func (m *memStore) Profile(_ context.Context, userID int64) (*profileentity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) UpdateFCMToken(_ context.Context, userID int64, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return sql.ErrNoRows
	}
	p.FCMToken = &tok
	return nil
}

func (m *memStore) RefreshToken(_ context.Context, tok string) (*tokenentity.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[tok]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) RotateRefreshToken(_ context.Context, old, next *tokenentity.RefreshToken, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[old.Token]
	if !ok || t.RevokedAt != nil {
		return ErrRefreshReplayed
	}
	t.RevokedAt = &at
	replaced := next.Token
	t.ReplacedBy = &replaced
	cp := *next
	m.refresh[cp.Token] = &cp
	return nil
}

func (m *memStore) RevokeRefreshToken(_ context.Context, userID int64, tok string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[tok]
	if !ok || t.UserID != userID || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	return true, nil
}

func (m *memStore) RevokeAllRefreshTokens(_ context.Context, userID int64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeAllLocked(userID, at), nil
}

func (m *memStore) revokeAllLocked(userID int64, at time.Time) int64 {
	var n int64
	for _, t := range m.refresh {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &at
			n++
		}
	}
	return n
}

func otpKey(target string, ch otpentity.Channel) string { return string(ch) + ":" + target }

func (m *memStore) UpsertOtp(_ context.Context, c *otpentity.Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.otps[otpKey(c.Target, c.Channel)]; ok {
		c.ID = prev.ID
	} else {
		m.otpSeq++
		c.ID = m.otpSeq
	}
	cp := *c
	cp.Attempts, cp.Used = 0, false
	m.otps[otpKey(c.Target, c.Channel)] = &cp
	return nil
}

func (m *memStore) FindLiveOtp(_ context.Context, target string, ch otpentity.Channel, now time.Time) (*otpentity.Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.otps[otpKey(target, ch)]
	if !ok || !c.Live(now) {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) otpByID(id int64) *otpentity.Code {
	for _, c := range m.otps {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (m *memStore) UseOtpAttempt(_ context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.otpByID(id)
	if c == nil || c.Used || c.Attempts >= c.MaxAttempts {
		return 0, sql.ErrNoRows
	}
	c.Attempts++
	return c.Attempts, nil
}

func (m *memStore) MarkOtpUsed(_ context.Context, id int64, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.otpByID(id)
	if c == nil || c.Used || c.Code != code {
		return false, nil
	}
	c.Used = true
	return true, nil
}

func (m *memStore) DeleteOtp(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, c := range m.otps {
		if c.ID == id {
			delete(m.otps, k)
		}
	}
	return nil
}

// test helpers

func (m *memStore) otp(target string, ch otpentity.Channel) *otpentity.Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.otps[otpKey(target, ch)]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func (m *memStore) setStatus(id int64, s userentity.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].Status = s
}

func (m *memStore) liveTokens(userID int64, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.refresh {
		if t.UserID == userID && t.Live(now) {
			n++
		}
	}
	return n
}

func (m *memStore) historyFor(userID *int64) []userentity.LoginHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []userentity.LoginHistory
	for _, h := range m.history {
		switch {
		case userID == nil && h.UserID == nil:
			out = append(out, h)
		case userID != nil && h.UserID != nil && *h.UserID == *userID:
			out = append(out, h)
		}
	}
	return out
}

// fakeNotifier records deliveries. Fail makes every send return an error.
type fakeNotifier struct {
	mu     sync.Mutex
	emails []notify.Email
	sms    []string
	Fail   bool
}

func (n *fakeNotifier) SendEmail(_ context.Context, msg notify.Email) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		return errors.New("smtp down")
	}
	n.emails = append(n.emails, msg)
	return nil
}

func (n *fakeNotifier) SendSMS(_ context.Context, to, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		return errors.New("gateway down")
	}
	n.sms = append(n.sms, to+"|"+message)
	return nil
}

func (n *fakeNotifier) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.emails))
	for _, e := range n.emails {
		out = append(out, e.Template)
	}
	sort.Strings(out)
	return out
}

type fakeVerifier struct {
	identities map[string]*provider.Identity
}

func (v fakeVerifier) Verify(_ context.Context, tok string) (*provider.Identity, error) {
	id, ok := v.identities[tok]
	if !ok {
		return nil, provider.ErrInvalidProviderToken
	}
	return id, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
