// Package services defines the business logic for members, messages, and
// mailbox records. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Member-related errors.
var (
	// ErrMemberNotFound indicates that the referenced member does not exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrEmailTaken is returned when a signup or update collides with an
	// existing member's email.
	ErrEmailTaken = errors.New("email already in use")

	// ErrNicknameTaken is returned when a signup or nickname change collides
	// with an existing member's nickname.
	ErrNicknameTaken = errors.New("nickname already in use")

	// ErrStorageFailure is returned when the external object store rejects or
	// fails a profile-image upload. Handlers map it to 502.
	ErrStorageFailure = errors.New("object storage failure")
)

// Message-related errors.
var (
	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrAlreadySaved is returned when a member marks a message as saved a
	// second time; at most one receiving record may exist per (message, member).
	ErrAlreadySaved = errors.New("message already saved by this member")

	// ErrSlugExhausted is returned when slug generation keeps colliding past
	// the retry limit. In practice this requires a nearly full slug space.
	ErrSlugExhausted = errors.New("could not generate a unique url name")
)
