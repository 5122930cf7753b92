package service

import "errors"

// ErrContestNotFound indicates the contest does not exist.
var ErrContestNotFound = errors.New("contest not found")

// ErrNotRegistered indicates the user has no registration for the contest.
var ErrNotRegistered = errors.New("user is not registered for this contest")

// ErrContestNotLive indicates the contest is not accepting new sessions.
var ErrContestNotLive = errors.New("contest is not live")

// ErrSessionNotFound indicates the user never started the contest.
var ErrSessionNotFound = errors.New("contest session not found")

// ErrSessionTerminal indicates a mutation was attempted after the session ended.
var ErrSessionTerminal = errors.New("contest session already submitted")

// ErrAlreadyRegistered indicates a duplicate registration.
var ErrAlreadyRegistered = errors.New("user already registered for this contest")

// ErrContestFull indicates the participant cap was reached.
var ErrContestFull = errors.New("contest has reached its participant limit")

// ErrRegistrationClosed indicates the contest already ended.
var ErrRegistrationClosed = errors.New("registration is closed")

// ErrProblemNotFound indicates the coding problem does not belong to the contest.
var ErrProblemNotFound = errors.New("problem not found")

// ErrUnsupportedLanguage indicates the requested language is not allowed.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrSectionDisabled indicates the contest has the requested section switched off.
var ErrSectionDisabled = errors.New("contest section disabled")

// ErrGradingPartialFailure indicates one or more test cases could not be executed but a verdict was still produced.
var ErrGradingPartialFailure = errors.New("grading completed with execution errors")

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrResultNotFound indicates no scored result exists for the participant.
var ErrResultNotFound = errors.New("result not found")

// ErrConcurrentUpdate indicates optimistic retries were exhausted.
var ErrConcurrentUpdate = errors.New("concurrent update, retry the request")

// ErrTrackTargetRequired indicates a question or problem time report without a target id.
var ErrTrackTargetRequired = errors.New("target_id is required for question and problem tracking")
