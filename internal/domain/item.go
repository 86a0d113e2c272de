package domain

import "time"

// Item represents a starred repository as fetched from the source provider.
type Item struct {
	ID          int64     `json:"id"          db:"id"`
	Name        string    `json:"name"        db:"name"` // owner/repo
	Description string    `json:"description" db:"description"`
	URL         string    `json:"url"         db:"url"`
	StarCount   int       `json:"star_count"  db:"star_count"`
	Topics      []string  `json:"topics"      db:"topics"`
	Content     string    `json:"-"           db:"content"` // readme, possibly empty
	UpdatedAt   time.Time `json:"updated_at"  db:"updated_at"`
}
