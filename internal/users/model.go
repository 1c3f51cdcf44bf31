package users

import (
	"strings"
	"time"
)

// MaxSDGs is the maximum number of development-goal tags a profile may carry.
const MaxSDGs = 3

// Account is a registered member. New accounts are inactive until an
// administrator approves them.
type Account struct {
	ID          int64     `json:"id"          db:"id"`
	Email       string    `json:"email"       db:"email"`
	IsActive    bool      `json:"isActive"    db:"is_active"`
	IsStaff     bool      `json:"isStaff"     db:"is_staff"`
	IsSuperuser bool      `json:"isSuperuser" db:"is_superuser"`
	DateJoined  time.Time `json:"dateJoined"  db:"date_joined"`
}

// PhoneNumber is owned by a profile.
type PhoneNumber struct {
	CountryCode string `json:"countryCode" db:"country_code"`
	Number      string `json:"number"      db:"number"`
}

// SocialMediaAccount is owned by a profile.
type SocialMediaAccount struct {
	Type    string `json:"type"    db:"type"`
	Account string `json:"account" db:"account"`
}

// SDG is a Sustainable Development Goal catalog entry.
type SDG struct {
	Code int    `json:"code" db:"code"`
	Name string `json:"name" db:"name"`
}

// UserRef is the nested account reference rendered on a profile.
type UserRef struct {
	Email string `json:"email"`
}

// Profile is the member-facing record, one per account. Its ID is the
// account ID.
type Profile struct {
	ID                  int64                `json:"id"`
	User                UserRef              `json:"user"`
	Name                string               `json:"name"`
	IsJuniorFellow      bool                 `json:"isJuniorFellow"`
	Campus              string               `json:"campus"`
	Batch               int                  `json:"batch"`
	City                string               `json:"city"`
	Country             string               `json:"country"`
	Bio                 string               `json:"bio"`
	Work                string               `json:"work"`
	Points              int                  `json:"points"`
	Picture             string               `json:"picture"`
	PhoneNumbers        []PhoneNumber        `json:"phoneNumber"`
	SocialMediaAccounts []SocialMediaAccount `json:"socialMediaAccounts"`
	SDGs                []int                `json:"sdgs"`
}

// RegistrationStatus is the outcome of a status check.
type RegistrationStatus int

const (
	StatusNotFound RegistrationStatus = iota
	StatusPending
	StatusApproved
)

func (s RegistrationStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusApproved:
		return "Approved"
	default:
		return "NotFound"
	}
}

// NormalizeEmail trims the address and lower-cases its domain part.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}
