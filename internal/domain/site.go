package domain

import "time"

// SiteStatus represents the lifecycle status of a tenant site.
type SiteStatus string

// Site statuses.
const (
	SiteStatusActive    SiteStatus = "active"
	SiteStatusSuspended SiteStatus = "suspended"
)

// IsValid checks if the site status is valid.
func (s SiteStatus) IsValid() bool {
	switch s {
	case SiteStatusActive, SiteStatusSuspended:
		return true
	}
	return false
}

// Site is one tenant's registered website.
// Token is the public identifier handed to untrusted browser code; ID never leaves the dashboard API.
type Site struct {
	ID              string     `json:"id"`
	Token           string     `json:"token"`
	OwnerID         string     `json:"owner_id"`
	Name            string     `json:"name"`
	Status          SiteStatus `json:"status"`
	SubscriberQuota int        `json:"subscriber_quota"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsActive returns true if the site may send notifications.
func (s *Site) IsActive() bool {
	return s.Status == SiteStatusActive
}

// Keypair is a site's VAPID signing keypair.
// PrivateKey is populated only inside the server; it is never serialized.
type Keypair struct {
	SiteID     string    `json:"site_id"`
	PublicKey  string    `json:"public_key"`
	PrivateKey string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
