package models

// Persisted key layout, one record per user.
const (
	StatusKeyPrefix      = "two_factor_status_"
	SecretKeyPrefix      = "two_factor_secret_"
	PendingKeyPrefix     = "two_factor_pending_"
	BackupCodesKeyPrefix = "backup_codes_"
)

func StatusKey(userID string) string      { return StatusKeyPrefix + userID }
func SecretKey(userID string) string      { return SecretKeyPrefix + userID }
func PendingKey(userID string) string     { return PendingKeyPrefix + userID }
func BackupCodesKey(userID string) string { return BackupCodesKeyPrefix + userID }
