package model

import "time"

// User represents a user in the system.
type User struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"uniqueIndex;type:varchar(64)"`
	Email        string    `json:"email" gorm:"uniqueIndex;type:varchar(128)"`
	PasswordHash string    `json:"-"` // Not exposed in API responses
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ArchiveCredentials are the per-user access/secret keys used to sign
// direct uploads to the archive. The secret never leaves the server.
type ArchiveCredentials struct {
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"-"`
}

// HasKeys reports whether both keys are present.
func (c ArchiveCredentials) HasKeys() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}
