package models

// Status is the coarse state of a Session.
type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
	StatusError           Status = "error"
)

// Session is the combined client-side view of who is signed in.
//
// Status is StatusAuthenticated only while Identity is set and the profile
// fetch for that identity has succeeded.
type Session struct {
	Identity *Identity
	Profile  *Profile
	Status   Status

	// LastError is the single user-visible error message, latest wins.
	LastError string
	// Warning carries non-blocking problems such as a failed wallet sync.
	Warning string
}

// Clone returns a copy that shares nothing with s.
func (s Session) Clone() Session {
	s.Identity = s.Identity.Clone()
	s.Profile = s.Profile.Clone()
	return s
}

// Role returns the profile role, or "" while no profile is loaded.
func (s Session) Role() Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}
