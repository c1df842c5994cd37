package flatfs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dperrone/flatfs"
)

func TestFSErrorWithMessage(t *testing.T) {
	newErr := flatfs.ErrNoSpaceOnDevice.WithMessage("asdfqwerty")
	assert.Equal(
		t, "No space left on device: asdfqwerty", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, flatfs.ErrNoSpaceOnDevice)
}

func TestFSErrorWrap(t *testing.T) {
	originalErr := errors.New("original error")
	newErr := flatfs.ErrExists.Wrap(originalErr)
	expectedMessage := "File exists: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, flatfs.ErrExists, "error kind not set as parent")
}

func TestFSErrorChainedAnnotations(t *testing.T) {
	originalErr := errors.New("disk fell over")
	newErr := flatfs.ErrIOFailed.Wrap(originalErr).WithMessage("while reading block 7")

	assert.ErrorIs(t, newErr, flatfs.ErrIOFailed)
	assert.ErrorIs(t, newErr, originalErr)
	assert.Equal(
		t,
		"Input/output error: disk fell over: while reading block 7",
		newErr.Error())
}
