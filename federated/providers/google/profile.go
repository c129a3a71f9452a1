package google

import (
	"strings"

	"github.com/goliatone/go-admission/federated"
)

// userInfo is the subset of the Google userinfo document that account
// resolution consumes.
type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
}

func (i userInfo) toProfile() *federated.Profile {
	name := i.Name
	if name == "" {
		name = i.GivenName
	}

	// Google has no username concept; the mailbox local part gives the
	// signup flow a handle fallback.
	username := ""
	if at := strings.IndexByte(i.Email, '@'); at > 0 {
		username = i.Email[:at]
	}

	return &federated.Profile{
		ProviderUserID: i.Sub,
		Provider:       "google",
		Email:          i.Email,
		EmailVerified:  i.EmailVerified,
		Name:           name,
		Username:       username,
	}
}
