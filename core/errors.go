package core

import "errors"

var (
	ErrInvalidOrdering   = errors.New("block position does not advance")
	ErrLockBusy          = errors.New("wallet log lock is busy")
	ErrLockIO            = errors.New("wallet log lock io error")
	ErrLockReleased      = errors.New("wallet log lock already released")
	ErrLogNotFound       = errors.New("wallet log not found")
	ErrIntegrityMismatch = errors.New("pack hash mismatch")
	ErrDecode            = errors.New("decode error")
	ErrAddressDerivation = errors.New("address derivation error")
	ErrCoinOverflow      = errors.New("coin overflow")
)
