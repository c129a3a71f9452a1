package github

import (
	"strconv"

	"github.com/goliatone/go-admission/federated"
)

// apiUser is the subset of the GitHub user document that account
// resolution consumes. Email here is the public profile address, which may
// be empty and is never trusted as verified.
type apiUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type apiEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (u apiUser) toProfile(email string, verified bool) *federated.Profile {
	return &federated.Profile{
		ProviderUserID: strconv.FormatInt(u.ID, 10),
		Provider:       "github",
		Email:          email,
		EmailVerified:  verified,
		Name:           u.Name,
		Username:       u.Login,
	}
}
