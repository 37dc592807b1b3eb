package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages.
var (
	// ErrNotInitialized is returned when no database folder has been configured.
	ErrNotInitialized = errors.New("database folder not initialized")

	// ErrNoDatabase is returned when the index or metadata files do not exist yet.
	ErrNoDatabase = errors.New("no vector database has been built")

	// ErrModelChanged is returned when the stored fingerprint differs from the current embedding model.
	ErrModelChanged = errors.New("embedding model changed since the index was built")

	// ErrNoValidVectors is returned when every vector of a batch was rejected.
	ErrNoValidVectors = errors.New("no valid vectors to add")

	// ErrUnsupportedType is returned for files whose extension has no parser.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrAlreadyIndexed is returned when a document id is already in the metadata.
	ErrAlreadyIndexed = errors.New("document already indexed")

	// ErrLLMUnavailable is returned when the LLM service cannot be reached.
	ErrLLMUnavailable = errors.New("llm service unavailable")

	// ErrInvalidOutput is returned when LLM output fails validation.
	ErrInvalidOutput = errors.New("invalid llm output")

	// ErrOrganizeRunning is returned when another organize run holds the database lock.
	ErrOrganizeRunning = errors.New("organize already running")

	// ErrNothingToOrganize is returned when the folder has no new matching files.
	ErrNothingToOrganize = errors.New("no new files to organize")

	// ErrEmptyQuery is returned for blank search queries.
	ErrEmptyQuery = errors.New("empty query")

	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("not found")
)

// SkipReason tags why a file was left out of an organize run.
type SkipReason string

const (
	ReasonTextBlocks    SkipReason = "text_blocks_error"
	ReasonFileType      SkipReason = "file_type_error"
	ReasonTopTextBlocks SkipReason = "top_text_blocks_error"
	ReasonHTTPRequest   SkipReason = "http_request_error"
	ReasonUnknownOllama SkipReason = "unknown_ollama_error"
	ReasonJSONParse     SkipReason = "json_parse_error"
	ReasonInvalidOutput SkipReason = "invalid_output_error"
	ReasonEmbedding     SkipReason = "embedding_error"
	ReasonModelChanged  SkipReason = "model_changed_error"
	ReasonNoValidVector SkipReason = "no_valid_vectors_error"
	ReasonIO            SkipReason = "io_error"
)

// SkipError attaches a SkipReason to an underlying error.
type SkipError struct {
	Reason SkipReason
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *SkipError) Unwrap() error { return e.Err }

// Skip wraps err with a skip reason.
func Skip(reason SkipReason, err error) error {
	return &SkipError{Reason: reason, Err: err}
}

// ReasonOf extracts the skip reason of a per-file error. Errors without one
// come from the summarizer and map to ReasonUnknownOllama.
func ReasonOf(err error) SkipReason {
	if reason, ok := knownReason(err); ok {
		return reason
	}
	return ReasonUnknownOllama
}

// FatalReason tags an error that ended an organize run. Errors without a
// reason, such as failed index or metadata writes, map to ReasonIO.
func FatalReason(err error) SkipReason {
	if reason, ok := knownReason(err); ok {
		return reason
	}
	return ReasonIO
}

func knownReason(err error) (SkipReason, bool) {
	var se *SkipError
	if errors.As(err, &se) {
		return se.Reason, true
	}
	switch {
	case errors.Is(err, ErrModelChanged):
		return ReasonModelChanged, true
	case errors.Is(err, ErrNoValidVectors):
		return ReasonNoValidVector, true
	case errors.Is(err, ErrUnsupportedType):
		return ReasonFileType, true
	}
	return "", false
}
