package models

import "time"

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenPair of tokens returned to the user on authentication
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
