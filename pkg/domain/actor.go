package domain

// Actor is the authenticated identity a request acts on behalf of. It is
// derived from a validated bearer token and passed explicitly to every
// service operation.
type Actor struct {
	UserID UserID
	Role   Role
}

// Anonymous is the actor of an unauthenticated request.
var Anonymous = Actor{}

// IsAuthenticated reports whether the actor carries an identity with a known role.
func (a Actor) IsAuthenticated() bool {
	return !a.UserID.IsNil() && a.Role.IsValid()
}
