package core

// SessionID identifies one signaling connection.
type SessionID string
