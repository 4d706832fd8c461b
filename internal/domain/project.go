package domain

import "time"

// Project represents a portfolio project, optionally backed by a GitHub repository.
type Project struct {
	ID          string    `json:"id"          db:"id"`
	Title       string    `json:"title"       db:"title"`
	Description string    `json:"description" db:"description"`
	TechStack   string    `json:"tech_stack"  db:"tech_stack"`
	GitHubURL   string    `json:"github_url"  db:"github_url"`
	CreatedAt   time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"  db:"updated_at"`
}
