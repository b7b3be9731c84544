// Copyright (C) 2025 veil.chat <dev@veil.chat>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package errors

var (
	// Session errors
	ErrNotAdmin      = NotAdmin("caller is not a group admin")
	ErrNotAMember    = NotAMember("not a member of this group")
	ErrNoActiveEpoch = New(CodeNoActiveEpoch, "no active epoch for this group")
	ErrDecryptFailed = New(CodeDecryptFailure, "envelope could not be decrypted")
	ErrGroupNotFound = NotFound("group not found")

	// Transport errors
	ErrNotConnected = New(CodeNotConnected, "relay unreachable")

	// Backup and recovery errors
	ErrNoIdentity        = New(CodeNoIdentity, "no account identity key")
	ErrInvalidCredential = New(CodeInvalidCredential, "recovery credential is invalid")
	ErrAlreadyBackedUp   = AlreadyExists("group state unchanged since last snapshot")

	// Invite errors
	ErrInviteNotFound = NotFound("invitation not found or already consumed")
)

// PartialFailure reports a batch operation where some items failed. Succeeded
// carries the number of items that completed before or around the failures.
type PartialFailure struct {
	Succeeded int
	Failed    int
	Causes    []error
}

func (p *PartialFailure) Error() string {
	return (&AppError{Code: CodePartialFailure, Message: "partial failure"}).Error()
}

func (p *PartialFailure) Unwrap() error {
	return New(CodePartialFailure, "partial failure")
}

func NewPartialFailure(succeeded, failed int, causes []error) error {
	return &PartialFailure{Succeeded: succeeded, Failed: failed, Causes: causes}
}
