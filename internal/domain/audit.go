package domain

import "time"

// AuditLog records one handled HTTP request for operational review.
type AuditLog struct {
	ID         string    `json:"id"          db:"id"`
	Method     string    `json:"method"      db:"method"`
	Path       string    `json:"path"        db:"path"`
	Status     int       `json:"status"      db:"status"`
	DurationMS int64     `json:"duration_ms" db:"duration_ms"`
	IP         string    `json:"ip"          db:"ip"`
	UserAgent  string    `json:"user_agent"  db:"user_agent"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}
