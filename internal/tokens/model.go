package tokens

import "time"

// Token is an opaque bearer credential bound to one account.
// Created never changes; Refreshed moves forward on every authenticated use.
type Token struct {
	Key       string    `json:"key"       db:"key"`
	AccountID int64     `json:"accountId" db:"account_id"`
	Created   time.Time `json:"created"   db:"created"`
	Refreshed time.Time `json:"refreshed" db:"refreshed"`
}

// Expired reports whether the token has outlived its absolute lifespan.
func (t *Token) Expired(now time.Time, lifespan time.Duration) bool {
	return now.Sub(t.Created) > lifespan
}

// TimedOut reports whether the token has been idle longer than the sliding window.
func (t *Token) TimedOut(now time.Time, idle time.Duration) bool {
	return now.Sub(t.Refreshed) > idle
}

// Owner is the account state joined onto a token lookup.
type Owner struct {
	Email    string
	IsActive bool
	IsStaff  bool
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	AccountID int64
	Email     string
	IsStaff   bool
	Token     *Token
}
