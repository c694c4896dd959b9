package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound  = fmt.Errorf("llm provider not found")
	ErrSessionNotFound   = fmt.Errorf("session not found")
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrEncryption        = fmt.Errorf("encryption operation failed")
	ErrDecryption        = fmt.Errorf("decryption failed")
	ErrAuditWrite        = fmt.Errorf("audit log write failed")
	ErrLLMOutput         = fmt.Errorf("llm output malformed")
	ErrUnknownOperation  = fmt.Errorf("unknown workflow operation")
	ErrInvalidArguments  = fmt.Errorf("invalid operation arguments")
	ErrOperationFailed   = fmt.Errorf("operation failed")
	ErrNoPendingApproval = fmt.Errorf("no pending approval")
	ErrApproverInvalid   = fmt.Errorf("approver not permitted")
	ErrTicketCreate      = fmt.Errorf("ticket creation failed")
	ErrTicketNotFound    = fmt.Errorf("ticket not found")
	ErrNotifyFailed      = fmt.Errorf("notification failed")
	ErrLogSource         = fmt.Errorf("log source unavailable")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrUpstream        = fmt.Errorf("upstream service failed")

	// Knowledge / embedding errors.
	ErrEmbeddingFailed = fmt.Errorf("embedding generation failed")
	ErrKnowledgeStore  = fmt.Errorf("knowledge store operation failed")
	ErrKnowledgeSearch = fmt.Errorf("knowledge search failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Jira.CreateTicket")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTransient reports whether err is worth surfacing as a temporary outage
// rather than a permanent failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrUpstream)
}

// ErrorCode is a machine-parseable error category for API responses and logs.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeProviderError     ErrorCode = "PROVIDER_ERROR"
	CodeProviderNotFound  ErrorCode = "PROVIDER_NOT_FOUND"
	CodeSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeEncryption        ErrorCode = "ENCRYPTION"
	CodeDecryption        ErrorCode = "DECRYPTION"
	CodeAuditWrite        ErrorCode = "AUDIT_WRITE"
	CodeLLMOutput         ErrorCode = "LLM_OUTPUT"
	CodeUnknownOperation  ErrorCode = "UNKNOWN_OPERATION"
	CodeInvalidArguments  ErrorCode = "INVALID_ARGUMENTS"
	CodeOperationFailed   ErrorCode = "OPERATION_FAILED"
	CodeNoPendingApproval ErrorCode = "NO_PENDING_APPROVAL"
	CodeApproverInvalid   ErrorCode = "APPROVER_INVALID"
	CodeTicketCreate      ErrorCode = "TICKET_CREATE"
	CodeTicketNotFound    ErrorCode = "TICKET_NOT_FOUND"
	CodeNotifyFailed      ErrorCode = "NOTIFY_FAILED"
	CodeLogSource         ErrorCode = "LOG_SOURCE"
	CodeContextOverflow   ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeUpstream          ErrorCode = "UPSTREAM"
	CodeEmbeddingFailed   ErrorCode = "EMBEDDING_FAILED"
	CodeKnowledgeStore    ErrorCode = "KNOWLEDGE_STORE"
	CodeKnowledgeSearch   ErrorCode = "KNOWLEDGE_SEARCH"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:          CodeNotFound,
	ErrTimeout:           CodeTimeout,
	ErrInvalidInput:      CodeInvalidInput,
	ErrProviderError:     CodeProviderError,
	ErrProviderNotFound:  CodeProviderNotFound,
	ErrSessionNotFound:   CodeSessionNotFound,
	ErrConfigLoad:        CodeConfigLoad,
	ErrEncryption:        CodeEncryption,
	ErrDecryption:        CodeDecryption,
	ErrAuditWrite:        CodeAuditWrite,
	ErrLLMOutput:         CodeLLMOutput,
	ErrUnknownOperation:  CodeUnknownOperation,
	ErrInvalidArguments:  CodeInvalidArguments,
	ErrOperationFailed:   CodeOperationFailed,
	ErrNoPendingApproval: CodeNoPendingApproval,
	ErrApproverInvalid:   CodeApproverInvalid,
	ErrTicketCreate:      CodeTicketCreate,
	ErrTicketNotFound:    CodeTicketNotFound,
	ErrNotifyFailed:      CodeNotifyFailed,
	ErrLogSource:         CodeLogSource,
	ErrContextOverflow:   CodeContextOverflow,
	ErrRateLimit:         CodeRateLimit,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrUpstream:          CodeUpstream,
	ErrEmbeddingFailed:   CodeEmbeddingFailed,
	ErrKnowledgeStore:    CodeKnowledgeStore,
	ErrKnowledgeSearch:   CodeKnowledgeSearch,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
