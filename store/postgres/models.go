package postgres

import (
	"time"

	"github.com/MrEthical07/streamauth"
)

type userModel struct {
	UserID          string     `gorm:"column:user_id;primaryKey"`
	Email           string     `gorm:"column:email"`
	PasswordHash    string     `gorm:"column:password_hash"`
	Role            string     `gorm:"column:role"`
	Status          int16      `gorm:"column:status"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	LastLoginAt     *time.Time `gorm:"column:last_login_at"`
	LastLoginIP     string     `gorm:"column:last_login_ip"`
	LastLoginDevice string     `gorm:"column:last_login_device"`
}

func (userModel) TableName() string { return "users" }

type deviceModel struct {
	UserID       string    `gorm:"column:user_id;primaryKey"`
	DeviceID     string    `gorm:"column:device_id;primaryKey"`
	DeviceType   string    `gorm:"column:device_type"`
	TokenHash    string    `gorm:"column:token_hash"`
	IP           string    `gorm:"column:ip"`
	UserAgent    string    `gorm:"column:user_agent"`
	LoggedInAt   time.Time `gorm:"column:logged_in_at"`
	LastActiveAt time.Time `gorm:"column:last_active_at"`
}

func (deviceModel) TableName() string { return "devices" }

func toUserRecord(m userModel) streamauth.UserRecord {
	out := streamauth.UserRecord{
		UserID:          m.UserID,
		Email:           m.Email,
		PasswordHash:    m.PasswordHash,
		Role:            m.Role,
		Status:          streamauth.AccountStatus(m.Status),
		CreatedAt:       m.CreatedAt,
		LastLoginIP:     m.LastLoginIP,
		LastLoginDevice: m.LastLoginDevice,
	}
	if m.LastLoginAt != nil {
		out.LastLoginAt = *m.LastLoginAt
	}
	return out
}

func fromUserRecord(u streamauth.UserRecord) userModel {
	m := userModel{
		UserID:          u.UserID,
		Email:           u.Email,
		PasswordHash:    u.PasswordHash,
		Role:            u.Role,
		Status:          int16(u.Status),
		CreatedAt:       u.CreatedAt,
		LastLoginIP:     u.LastLoginIP,
		LastLoginDevice: u.LastLoginDevice,
	}
	if !u.LastLoginAt.IsZero() {
		at := u.LastLoginAt
		m.LastLoginAt = &at
	}
	return m
}

func toDeviceRecord(m deviceModel) streamauth.DeviceRecord {
	return streamauth.DeviceRecord{
		UserID:       m.UserID,
		DeviceID:     m.DeviceID,
		DeviceType:   streamauth.DeviceType(m.DeviceType),
		TokenHash:    m.TokenHash,
		IP:           m.IP,
		UserAgent:    m.UserAgent,
		LoggedInAt:   m.LoggedInAt,
		LastActiveAt: m.LastActiveAt,
	}
}

func fromDeviceRecord(d streamauth.DeviceRecord) deviceModel {
	return deviceModel{
		UserID:       d.UserID,
		DeviceID:     d.DeviceID,
		DeviceType:   string(d.DeviceType),
		TokenHash:    d.TokenHash,
		IP:           d.IP,
		UserAgent:    d.UserAgent,
		LoggedInAt:   d.LoggedInAt,
		LastActiveAt: d.LastActiveAt,
	}
}
