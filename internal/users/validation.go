package users

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// RegisterInput is the registration payload.
type RegisterInput struct {
	User           UserRef      `json:"user"`
	Name           string       `json:"name"`
	IsJuniorFellow bool         `json:"isJuniorFellow"`
	Campus         string       `json:"campus"`
	Batch          int          `json:"batch"`
	PhoneNumber    *PhoneNumber `json:"phoneNumber"`
	SDGs           []int        `json:"sdgs"`
}

// Validate checks field shape. SDG codes are checked against the catalog by
// the service.
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.User),
		validation.Field(&in.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Campus, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Batch, validation.Required, validation.Min(1)),
		validation.Field(&in.PhoneNumber),
		validation.Field(&in.SDGs, validation.Length(0, MaxSDGs)),
	)
}

// Validate requires a well-formed email.
func (u UserRef) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Email, validation.Required, is.EmailFormat, validation.Length(1, 254)),
	)
}

// Validate checks a phone number entry.
func (p PhoneNumber) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.CountryCode, validation.Length(0, 5)),
		validation.Field(&p.Number, validation.Required, validation.Length(1, 30)),
	)
}

// Validate checks a social-media entry.
func (a SocialMediaAccount) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Type, validation.Required, validation.Length(1, 50)),
		validation.Field(&a.Account, validation.Required, validation.Length(1, 200)),
	)
}

// ProfileUpdate is a partial profile update. Nil fields are left unchanged;
// non-nil lists replace the stored set entirely. Points, junior-fellow state
// and the account email are not updatable and have no field here.
type ProfileUpdate struct {
	Name                *string              `json:"name"`
	Campus              *string              `json:"campus"`
	Batch               *int                 `json:"batch"`
	City                *string              `json:"city"`
	Country             *string              `json:"country"`
	Bio                 *string              `json:"bio"`
	Work                *string              `json:"work"`
	PhoneNumbers        []PhoneNumber        `json:"phoneNumber"`
	SocialMediaAccounts []SocialMediaAccount `json:"socialMediaAccounts"`
	SDGs                []int                `json:"sdgs"`
}

// Validate checks the fields present in the update.
func (u ProfileUpdate) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Name, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&u.Campus, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&u.Batch, validation.NilOrNotEmpty, validation.Min(1)),
		validation.Field(&u.City, validation.Length(0, 100)),
		validation.Field(&u.Country, validation.Length(0, 100)),
		validation.Field(&u.Bio, validation.Length(0, 1000)),
		validation.Field(&u.Work, validation.Length(0, 200)),
		validation.Field(&u.PhoneNumbers),
		validation.Field(&u.SocialMediaAccounts),
		validation.Field(&u.SDGs, validation.Length(0, MaxSDGs)),
	)
}

// StatusQuery is the registration-status lookup.
type StatusQuery struct {
	Email string `json:"email"`
}

// Validate requires a well-formed email.
func (q StatusQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Email, validation.Required, is.EmailFormat),
	)
}
