package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/streamauth"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements streamauth.UserStore and streamauth.DeviceStore on
// Postgres. BindDevice locks the owning user row so concurrent logins for
// one user serialize their count-then-insert.
type Store struct {
	db *gorm.DB
}

var (
	_ streamauth.UserStore   = (*Store)(nil)
	_ streamauth.DeviceStore = (*Store)(nil)
)

// New wraps an open gorm connection. Run [Migrate] first.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (streamauth.UserRecord, error) {
	var rec userModel
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return streamauth.UserRecord{}, streamauth.ErrUserNotFound
		}
		return streamauth.UserRecord{}, err
	}
	return toUserRecord(rec), nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (streamauth.UserRecord, error) {
	var rec userModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return streamauth.UserRecord{}, streamauth.ErrUserNotFound
		}
		return streamauth.UserRecord{}, err
	}
	return toUserRecord(rec), nil
}

func (s *Store) CreateUser(ctx context.Context, user streamauth.UserRecord) error {
	user.Email = normalizeEmail(user.Email)
	rec := fromUserRecord(user)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return streamauth.ErrAccountExists
		}
		return err
	}
	return nil
}

func (s *Store) RecordLogin(ctx context.Context, userID string, at time.Time, ip, deviceID string) error {
	res := s.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"last_login_at":     at,
			"last_login_ip":     ip,
			"last_login_device": deviceID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return streamauth.ErrUserNotFound
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	res := s.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Update("password_hash", passwordHash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return streamauth.ErrUserNotFound
	}
	return nil
}

// SetStatus changes the account status of userID. The engine never calls
// it; operator tooling does.
func (s *Store) SetStatus(ctx context.Context, userID string, status streamauth.AccountStatus) error {
	res := s.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Update("status", int16(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return streamauth.ErrUserNotFound
	}
	return nil
}

func (s *Store) BindDevice(ctx context.Context, d streamauth.DeviceRecord, maxDevices int) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner userModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("user_id").
			Where("user_id = ?", d.UserID).
			Take(&owner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return streamauth.ErrUserNotFound
			}
			return err
		}

		var existing deviceModel
		err := tx.Where("user_id = ? AND device_id = ?", d.UserID, d.DeviceID).Take(&existing).Error
		switch {
		case err == nil:
			updates := map[string]any{
				"token_hash":     d.TokenHash,
				"ip":             d.IP,
				"user_agent":     d.UserAgent,
				"last_active_at": d.LastActiveAt,
			}
			if d.DeviceType != "" {
				updates["device_type"] = string(d.DeviceType)
			}
			return tx.Model(&deviceModel{}).
				Where("user_id = ? AND device_id = ?", d.UserID, d.DeviceID).
				Updates(updates).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if maxDevices > 0 {
			var count int64
			if err := tx.Model(&deviceModel{}).Where("user_id = ?", d.UserID).Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(maxDevices) {
				return streamauth.ErrDeviceQuotaExceeded
			}
		}

		rec := fromDeviceRecord(d)
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *Store) FindDeviceByTokenHash(ctx context.Context, tokenHash string) (streamauth.DeviceRecord, error) {
	var rec deviceModel
	if err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return streamauth.DeviceRecord{}, streamauth.ErrDeviceNotFound
		}
		return streamauth.DeviceRecord{}, err
	}
	return toDeviceRecord(rec), nil
}

func (s *Store) RotateDeviceToken(ctx context.Context, userID, deviceID, oldHash, newHash string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&deviceModel{}).
		Where("user_id = ? AND device_id = ? AND token_hash = ?", userID, deviceID, oldHash).
		Updates(map[string]any{
			"token_hash":     newHash,
			"last_active_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return streamauth.ErrDeviceNotFound
	}
	return nil
}

func (s *Store) RemoveDeviceByTokenHash(ctx context.Context, userID, tokenHash string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND token_hash = ?", userID, tokenHash).
		Delete(&deviceModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) RemoveDevice(ctx context.Context, userID, deviceID string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Delete(&deviceModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) RemoveAllDevices(ctx context.Context, userID string) (int, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&deviceModel{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *Store) ListDevices(ctx context.Context, userID string) ([]streamauth.DeviceRecord, error) {
	var rows []deviceModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("device_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]streamauth.DeviceRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDeviceRecord(row))
	}
	return out, nil
}
