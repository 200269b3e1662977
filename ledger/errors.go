package ledger

import "errors"

// RejectionCode classifies why a bridge operation was refused. Rejections are
// terminal for the instruction but never abort the replicated execution step:
// they are surfaced as OperationRejected events so every replica stays in
// sync and the submitting caller can decide whether to resubmit.
type RejectionCode string

const (
	RejectInvalidAmount       RejectionCode = "InvalidAmount"
	RejectInvalidDestination  RejectionCode = "InvalidDestination"
	RejectBridgePaused        RejectionCode = "BridgePaused"
	RejectLimitsNotConfigured RejectionCode = "LimitsNotConfigured"
	RejectAmountOutOfRange    RejectionCode = "AmountOutOfRange"
	RejectRateLimited         RejectionCode = "RateLimited"
	RejectInsufficientFunds   RejectionCode = "InsufficientFunds"
	RejectUnauthorized        RejectionCode = "Unauthorized"
	RejectInvalidSource       RejectionCode = "InvalidSource"
	RejectRecipientNotFound   RejectionCode = "RecipientNotFound"
	RejectNotFound            RejectionCode = "NotFound"
	RejectAlreadyFulfilled    RejectionCode = "AlreadyFulfilled"
	RejectDelayNotElapsed     RejectionCode = "DelayNotElapsed"
	RejectArithmeticOverflow  RejectionCode = "ArithmeticOverflow"
	RejectInvalidPolicy       RejectionCode = "InvalidPolicy"
	RejectUnknownInstruction  RejectionCode = "UnknownInstruction"
)

// Infrastructure errors. Unlike rejections these are returned as Go errors:
// they mean the transaction never entered (or the store failed during) the
// deterministic application step.
var (
	ErrInvalidSignature = errors.New("invalid transaction signature")
	ErrBadNonce         = errors.New("transaction nonce does not match account nonce")
)
