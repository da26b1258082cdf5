package domain

import (
	"encoding/json"
	"time"
)

type Subscription struct {
	ID          string          `json:"id"`
	SiteID      string          `json:"site_id"`
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"-"`
	UserAgent   string          `json:"user_agent"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	LastSeen    time.Time       `json:"last_seen"`
}
