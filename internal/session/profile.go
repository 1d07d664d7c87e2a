package session

import "errors"

// Profile is the in-memory projection of the authenticated identity. It is
// rebuilt from /accounts/me/ and never persisted.
type Profile struct {
	ID           string
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PhoneNumber  string
	DateOfBirth  string
	IDNumberType string
	IDNumber     string
	WalletID     string
}

// DisplayName joins the name parts, falling back to the username.
func (p Profile) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	default:
		return p.Username
	}
}

// ProfileUpdate carries the fields a caller may change locally. Nil fields are
// left untouched.
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	Email       *string
	PhoneNumber *string
}

func (u ProfileUpdate) empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil && u.PhoneNumber == nil
}

func (p Profile) merge(u ProfileUpdate) Profile {
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.PhoneNumber != nil {
		p.PhoneNumber = *u.PhoneNumber
	}
	return p
}

type profileResponse struct {
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	PhoneNumber  string  `json:"phone_number"`
	DateOfBirth  *string `json:"date_of_birth"`
	IDNumberType string  `json:"id_number_type"`
	IDNumber     *string `json:"id_number"`
	WalletID     string  `json:"wallet_id"`
}

func (r *profileResponse) Validate() error {
	if r.Username == "" {
		return errors.New("profile is missing username")
	}
	return nil
}

func (r *profileResponse) profile() Profile {
	p := Profile{
		ID:           r.Username,
		Username:     r.Username,
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		PhoneNumber:  r.PhoneNumber,
		IDNumberType: r.IDNumberType,
		WalletID:     r.WalletID,
	}
	if r.DateOfBirth != nil {
		p.DateOfBirth = *r.DateOfBirth
	}
	if r.IDNumber != nil {
		p.IDNumber = *r.IDNumber
	}
	return p
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (r *tokenResponse) Validate() error {
	if r.Access == "" || r.Refresh == "" {
		return errors.New("token response must carry access and refresh")
	}
	return nil
}
