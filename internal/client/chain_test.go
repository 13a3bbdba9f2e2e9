package client

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"nonce too low: next nonce 5, tx nonce 4", ErrNonceTooLow},
		{"transaction underpriced", ErrUnderpriced},
		{"replacement transaction underpriced", ErrUnderpriced},
		{"max fee per gas less than block base fee", ErrUnderpriced},
		{"execution reverted: invalid nonce", ErrInvalidSequence},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := ClassifyError(errors.New(tt.msg))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.msg, err.Error())
		})
	}

	plain := errors.New("connection reset")
	assert.Equal(t, plain, ClassifyError(plain))
	assert.NoError(t, ClassifyError(nil))
}
