package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNoStorageNode = errors.New("no storage node")
)
