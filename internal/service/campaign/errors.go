package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidSender     = errors.New("unknown sender identity")
	ErrNoRecipients      = errors.New("campaign has no active recipients")
	ErrNoStagedEmails    = errors.New("campaign has no staged emails")
	ErrNoFailedEmails    = errors.New("campaign has no failed emails")
	ErrLaunchInProgress  = errors.New("another launch is currently planning")
)
