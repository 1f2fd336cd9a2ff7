// Package memory provides in-process UserStore and DeviceStore
// implementations for tests, examples and the load generator. Data lives
// for the life of the process.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/streamauth"
)

// Store implements both streamauth.UserStore and streamauth.DeviceStore.
// One mutex guards users and devices so BindDevice's count-then-insert is
// atomic.
type Store struct {
	mu sync.Mutex

	users   map[string]streamauth.UserRecord
	byEmail map[string]string

	// devices is keyed by user id, then device id.
	devices map[string]map[string]streamauth.DeviceRecord
	byHash  map[string]deviceKey
}

type deviceKey struct {
	userID   string
	deviceID string
}

var (
	_ streamauth.UserStore   = (*Store)(nil)
	_ streamauth.DeviceStore = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:   make(map[string]streamauth.UserRecord),
		byEmail: make(map[string]string),
		devices: make(map[string]map[string]streamauth.DeviceRecord),
		byHash:  make(map[string]deviceKey),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (streamauth.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return streamauth.UserRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return streamauth.UserRecord{}, streamauth.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (streamauth.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return streamauth.UserRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return streamauth.UserRecord{}, streamauth.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, user streamauth.UserRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(user.Email)
	if _, exists := s.byEmail[email]; exists {
		return streamauth.ErrAccountExists
	}
	if _, exists := s.users[user.UserID]; exists {
		return streamauth.ErrAccountExists
	}
	user.Email = email
	s.users[user.UserID] = user
	s.byEmail[email] = user.UserID
	return nil
}

func (s *Store) RecordLogin(ctx context.Context, userID string, at time.Time, ip, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return streamauth.ErrUserNotFound
	}
	u.LastLoginAt = at
	u.LastLoginIP = ip
	u.LastLoginDevice = deviceID
	s.users[userID] = u
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return streamauth.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	s.users[userID] = u
	return nil
}

// SetStatus changes the account status of userID. It exists for tests and
// operator tooling; the engine never changes account status.
func (s *Store) SetStatus(_ context.Context, userID string, status streamauth.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return streamauth.ErrUserNotFound
	}
	u.Status = status
	s.users[userID] = u
	return nil
}

func (s *Store) BindDevice(ctx context.Context, d streamauth.DeviceRecord, maxDevices int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.devices[d.UserID]
	if existing, ok := owned[d.DeviceID]; ok {
		delete(s.byHash, existing.TokenHash)
		d.LoggedInAt = existing.LoggedInAt
		if d.DeviceType == "" {
			d.DeviceType = existing.DeviceType
		}
		owned[d.DeviceID] = d
		s.byHash[d.TokenHash] = deviceKey{userID: d.UserID, deviceID: d.DeviceID}
		return false, nil
	}

	if maxDevices > 0 && len(owned) >= maxDevices {
		return false, streamauth.ErrDeviceQuotaExceeded
	}
	if owned == nil {
		owned = make(map[string]streamauth.DeviceRecord)
		s.devices[d.UserID] = owned
	}
	owned[d.DeviceID] = d
	s.byHash[d.TokenHash] = deviceKey{userID: d.UserID, deviceID: d.DeviceID}
	return true, nil
}

func (s *Store) FindDeviceByTokenHash(ctx context.Context, tokenHash string) (streamauth.DeviceRecord, error) {
	if err := ctx.Err(); err != nil {
		return streamauth.DeviceRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.byHash[tokenHash]
	if !ok {
		return streamauth.DeviceRecord{}, streamauth.ErrDeviceNotFound
	}
	return s.devices[k.userID][k.deviceID], nil
}

func (s *Store) RotateDeviceToken(ctx context.Context, userID, deviceID, oldHash, newHash string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[userID][deviceID]
	if !ok || d.TokenHash != oldHash {
		return streamauth.ErrDeviceNotFound
	}
	delete(s.byHash, oldHash)
	d.TokenHash = newHash
	d.LastActiveAt = at
	s.devices[userID][deviceID] = d
	s.byHash[newHash] = deviceKey{userID: userID, deviceID: deviceID}
	return nil
}

func (s *Store) RemoveDeviceByTokenHash(ctx context.Context, userID, tokenHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.byHash[tokenHash]
	if !ok || k.userID != userID {
		return false, nil
	}
	s.removeLocked(k.userID, k.deviceID)
	return true, nil
}

func (s *Store) RemoveDevice(ctx context.Context, userID, deviceID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[userID][deviceID]; !ok {
		return false, nil
	}
	s.removeLocked(userID, deviceID)
	return true, nil
}

func (s *Store) RemoveAllDevices(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.devices[userID]
	for _, d := range owned {
		delete(s.byHash, d.TokenHash)
	}
	delete(s.devices, userID)
	return len(owned), nil
}

func (s *Store) ListDevices(ctx context.Context, userID string) ([]streamauth.DeviceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]streamauth.DeviceRecord, 0, len(s.devices[userID]))
	for _, d := range s.devices[userID] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (s *Store) removeLocked(userID, deviceID string) {
	d := s.devices[userID][deviceID]
	delete(s.byHash, d.TokenHash)
	delete(s.devices[userID], deviceID)
	if len(s.devices[userID]) == 0 {
		delete(s.devices, userID)
	}
}
