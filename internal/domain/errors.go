package domain

import "errors"

var (
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidTransition  = errors.New("invalid ticket transition")
	ErrAlreadyClaimed     = errors.New("ticket already claimed by another agent")
	ErrNotClaimHolder     = errors.New("agent does not hold the ticket")
	ErrInvalidStatus      = errors.New("invalid agent status")
)
