// Package clustererr defines the closed set of error kinds the cluster core
// raises, following the same structured-error shape the rest of the
// repository uses for domain errors.
package clustererr

import (
	"errors"
	"fmt"
)

// Kind is one of the nine closed cluster error kinds. No other kind exists;
// callers that need a new failure mode must add one here rather than
// introduce an ad-hoc sentinel elsewhere.
type Kind string

const (
	KindLock              Kind = "LockError"
	KindSendMessage       Kind = "SendMessageError"
	KindStartNode         Kind = "StartNodeError"
	KindEventPubSub        Kind = "EventPubSub"
	KindPromotingReplica   Kind = "PromotingReplicaError"
	KindSetNewMaster       Kind = "SetNewMasterError"
	KindClusterValidation  Kind = "ClusterValidationError"
	KindSendMeetNewMaster  Kind = "SendMeetNewMasterError"
	KindReqVote            Kind = "ReqVoteError"
)

// ClusterError is the structured error type every cluster-core failure path
// returns. It wraps an optional cause and carries a closed Kind so callers
// can branch on failure category with errors.As + Kind comparison instead of
// string matching.
type ClusterError struct {
	Kind    Kind
	Message string
	Details string
	Cause   error
}

func (e *ClusterError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *ClusterError) Unwrap() error {
	return e.Cause
}

func (e *ClusterError) Is(target error) bool {
	t, ok := target.(*ClusterError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, message string) *ClusterError {
	return &ClusterError{Kind: kind, Message: message}
}

// WithDetails returns a copy of the error with additional context attached.
func (e *ClusterError) WithDetails(details string) *ClusterError {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy of the error wrapping cause.
func (e *ClusterError) WithCause(cause error) *ClusterError {
	c := *e
	c.Cause = cause
	return &c
}

// Is reports whether err is a ClusterError of the given kind.
func Is(err error, kind Kind) bool {
	var ce *ClusterError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// Constructors, one per closed kind, mirroring the one-sentinel-per-failure
// convention used elsewhere in the repository.
func NewLockError(message string) *ClusterError             { return newError(KindLock, message) }
func NewSendMessageError(message string) *ClusterError       { return newError(KindSendMessage, message) }
func NewStartNodeError(message string) *ClusterError         { return newError(KindStartNode, message) }
func NewEventPubSubError(message string) *ClusterError       { return newError(KindEventPubSub, message) }
func NewPromotingReplicaError(message string) *ClusterError  { return newError(KindPromotingReplica, message) }
func NewSetNewMasterError(message string) *ClusterError      { return newError(KindSetNewMaster, message) }
func NewClusterValidationError(message string) *ClusterError { return newError(KindClusterValidation, message) }
func NewSendMeetNewMasterError(message string) *ClusterError { return newError(KindSendMeetNewMaster, message) }
func NewReqVoteError(message string) *ClusterError           { return newError(KindReqVote, message) }
