package domain

import "time"

// AuditLog records one handled API request.
type AuditLog struct {
	ID         int64     `json:"id"`
	Principal  string    `json:"principal"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
}
