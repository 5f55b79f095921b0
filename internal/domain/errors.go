package domain

import "errors"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrAgentUnknown       = errors.New("agent unknown")
	ErrInvalidFactorScore = errors.New("invalid factor score")
	ErrFactorUnknown      = errors.New("factor unknown")
	ErrProbeUnknown       = errors.New("probe unknown")
	ErrOriginExists       = errors.New("origin record exists")
	ErrOriginMissing      = errors.New("origin record missing")
	ErrSequenceConflict   = errors.New("ledger sequence conflict")
	ErrNotFound           = errors.New("not found")
)
