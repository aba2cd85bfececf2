package auth

import "sync"

// Identity is the signed-in user of one client connection. It can change at any
// time (sign in, sign out, token refresh), so readers must not cache it.
type Identity struct {
	mu     sync.RWMutex
	userID *string
}

func NewIdentity(userID string) *Identity {
	id := &Identity{}
	id.Set(userID)
	return id
}

// CurrentUserID returns a copy of the user id, or nil when anonymous.
func (i *Identity) CurrentUserID() *string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.userID == nil {
		return nil
	}
	out := *i.userID
	return &out
}

// Set replaces the user. An empty id signs out.
func (i *Identity) Set(userID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if userID == "" {
		i.userID = nil
		return
	}
	i.userID = &userID
}

// Authenticate verifies a bearer token and switches the identity to its user.
func (i *Identity) Authenticate(token, secret string) (*Claims, error) {
	claims, err := VerifyAccessToken(token, secret)
	if err != nil {
		return nil, err
	}
	i.Set(claims.UserID)
	return claims, nil
}
