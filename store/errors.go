package store

import "errors"

var (
	ErrNoKey = errors.New("ecash/store: no bank key for identity")
)
