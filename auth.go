package main

import (
	"crypto/subtle"
	"fmt"

	"offchaind/oc"
)

// Caller is an authenticated account name.
type Caller string

type Authenticator interface {
	Authenticate(account, token string) (Caller, error)
}

// StaticAuth checks bearer tokens against a fixed account -> token table.
type StaticAuth map[string]string

func (a StaticAuth) Authenticate(account, token string) (Caller, error) {
	want, ok := a[account]
	if !ok || token == "" || subtle.ConstantTimeCompare([]byte(want), []byte(token)) != 1 {
		return "", fmt.Errorf("account %q: %w", account, oc.ErrUnauthenticated)
	}
	return Caller(account), nil
}
