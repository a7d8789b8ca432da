package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrInvalidContent  = errors.New("invalid content")
	ErrInvalidPane     = errors.New("invalid pane")
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidEmail    = errors.New("invalid email")
)
