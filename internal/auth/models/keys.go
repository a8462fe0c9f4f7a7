package models

// Persisted key layout.
const (
	SessionKeyPrefix      = "session_"
	UserSessionsKeyPrefix = "user_sessions_"
)

func SessionKey(sessionID string) string { return SessionKeyPrefix + sessionID }

func UserSessionsKey(userID string) string { return UserSessionsKeyPrefix + userID }
