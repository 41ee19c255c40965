package ingest

import (
	"errors"
)

// The caller sent something unusable, or the model found nothing to extract.
// Message and Details are safe to show to the caller.
type ValidationError struct {
	Message string
	Details string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// The model replied with something that is not JSON. The reply itself is
// logged, never returned.
type ParseError struct {
	Err error
}

const parseErrorMessage = "The summarization service returned an unreadable response"

func (e *ParseError) Error() string {
	return "failed to parse LLM reply: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// A dependency (the store, the LLM API, a transcript host) failed. Message is
// the sanitized text shown to the caller; Err is only logged.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

const (
	msgTranscriptRequired = "Transcript is required"
	msgNoIdeas            = "No ideas extracted from transcript"
	msgCreateDigest       = "Failed to create digest"
	msgSaveIdeas          = "Failed to save ideas to database"
	msgProcessTranscript  = "Failed to process transcript"
	msgFetchTranscript    = "Failed to fetch transcript"
)

// The message and optional details for an error returned by Process, safe to
// send to the client.
func PublicMessage(err error) (message string, details string) {
	var validationErr *ValidationError
	var parseErr *ParseError
	var upstreamErr *UpstreamError
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Message, validationErr.Details
	case errors.As(err, &parseErr):
		return msgProcessTranscript, parseErrorMessage
	case errors.As(err, &upstreamErr):
		return upstreamErr.Message, ""
	default:
		return msgProcessTranscript, ""
	}
}

func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
