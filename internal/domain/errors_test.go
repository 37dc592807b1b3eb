package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonOf(t *testing.T) {
	wrapped := fmt.Errorf("summarize: %w", Skip(ReasonJSONParse, errors.New("bad json")))
	assert.Equal(t, ReasonJSONParse, ReasonOf(wrapped))
	assert.Equal(t, ReasonModelChanged, ReasonOf(fmt.Errorf("index: %w", ErrModelChanged)))
	assert.Equal(t, ReasonFileType, ReasonOf(ErrUnsupportedType))
	assert.Equal(t, ReasonUnknownOllama, ReasonOf(errors.New("boom")))
}

func TestSkipErrorUnwrap(t *testing.T) {
	err := Skip(ReasonInvalidOutput, ErrInvalidOutput)
	assert.True(t, errors.Is(err, ErrInvalidOutput))
	assert.Equal(t, "invalid_output_error: invalid llm output", err.Error())
	assert.Equal(t, "embedding_error", Skip(ReasonEmbedding, nil).Error())
}

func TestFatalReason(t *testing.T) {
	assert.Equal(t, ReasonModelChanged, FatalReason(fmt.Errorf("index: %w", ErrModelChanged)))
	assert.Equal(t, ReasonNoValidVector, FatalReason(ErrNoValidVectors))
	assert.Equal(t, ReasonIO, FatalReason(errors.New("save index: rename: file exists")))
}
