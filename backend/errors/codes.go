// Copyright (C) 2025 veil.chat <dev@veil.chat>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package errors

type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeAlreadyExists     Code = "ALREADY_EXISTS"
	CodeNotConnected      Code = "NOT_CONNECTED"
	CodeNotAdmin          Code = "NOT_ADMIN"
	CodeNotAMember        Code = "NOT_A_MEMBER"
	CodeDecryptFailure    Code = "DECRYPT_FAILURE"
	CodeNoActiveEpoch     Code = "NO_ACTIVE_EPOCH"
	CodePartialFailure    Code = "PARTIAL_FAILURE"
	CodeNoIdentity        Code = "NO_IDENTITY"
	CodeInvalidCredential Code = "INVALID_CREDENTIAL"
	CodeInternal          Code = "INTERNAL"
)
