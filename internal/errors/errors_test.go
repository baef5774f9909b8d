// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package errors

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stderrors "errors"
)

func TestUserError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *UserError
		want string
	}{
		{"with underlying error", &UserError{Message: "Cannot merge", Err: fmt.Errorf("deadlock")}, "Cannot merge: deadlock"},
		{"without underlying error", &UserError{Message: "Invalid input"}, "Invalid input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestUserError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("underlying")
	err := &UserError{Message: "m", Err: underlying}
	assert.Equal(t, underlying, err.Unwrap())

	bare := &UserError{Message: "m"}
	assert.Nil(t, bare.Unwrap())
}

func TestExitCodeForKind(t *testing.T) {
	tests := []struct {
		kind     Kind
		wantExit int
	}{
		{KindConfiguration, ExitConfig},
		{KindAcquisition, ExitLoader},
		{KindMalformedDocument, ExitPartial},
		{KindWriter, ExitLoader},
		{KindStaging, ExitLoader},
		{KindMerge, ExitLoader},
		{KindIntegrityViolation, ExitLoader},
		{KindTransientDB, ExitLoader},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.wantExit, exitCodeForKind[tt.kind])
		})
	}
}

func TestConstructors(t *testing.T) {
	underlying := fmt.Errorf("boom")

	tests := []struct {
		name     string
		err      *UserError
		wantKind Kind
		wantExit int
	}{
		{"config", NewConfigurationError("m", "c", "f", underlying), KindConfiguration, ExitConfig},
		{"acquisition", NewAcquisitionError("m", "c", "f", underlying), KindAcquisition, ExitLoader},
		{"malformed", NewMalformedDocumentError("m", "c", "f", underlying), KindMalformedDocument, ExitPartial},
		{"writer", NewWriterError("m", "c", "f", underlying), KindWriter, ExitLoader},
		{"staging", NewStagingError("m", "c", "f", underlying), KindStaging, ExitLoader},
		{"merge", NewMergeError("m", "c", "f", underlying), KindMerge, ExitLoader},
		{"integrity", NewIntegrityViolationError("m", "c", "f", underlying), KindIntegrityViolation, ExitLoader},
		{"transient", NewTransientDBError("m", "c", "f", underlying), KindTransientDB, ExitLoader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, "m", tt.err.Message)
			require.Equal(t, "c", tt.err.Cause)
			require.Equal(t, "f", tt.err.Fix)
			assert.Equal(t, tt.wantKind, tt.err.Kind)
			assert.Equal(t, tt.wantExit, tt.err.ExitCode)
			assert.Equal(t, underlying, tt.err.Err)
		})
	}
}

func TestErrorChain(t *testing.T) {
	sentinel := fmt.Errorf("sentinel")
	wrapped := fmt.Errorf("wrapped: %w", sentinel)
	userErr := NewMergeError("merge failed", "c", "f", wrapped)

	assert.True(t, stderrors.Is(userErr, sentinel))

	var target *UserError
	assert.True(t, stderrors.As(userErr, &target))
	assert.Equal(t, KindMerge, target.Kind)
}

func TestUserError_Format(t *testing.T) {
	err := &UserError{
		Message: "Cannot merge staging",
		Cause:   "duplicate key",
		Fix:     "retry the run",
	}
	got := err.Format(true)
	assert.Contains(t, got, "Error: Cannot merge staging")
	assert.Contains(t, got, "Cause: duplicate key")
	assert.Contains(t, got, "Fix:   retry the run")
}

func TestUserError_Format_NoColor(t *testing.T) {
	old := os.Getenv("NO_COLOR")
	defer os.Setenv("NO_COLOR", old)
	os.Setenv("NO_COLOR", "1")

	err := &UserError{Message: "x", Cause: "y", Fix: "z"}
	out := err.Format(false)
	assert.False(t, strings.Contains(out, "\x1b["))
}

func TestUserError_ToJSON(t *testing.T) {
	err := NewStagingError("staging failed", "copy error", "check CSV dialect", nil)
	j := err.ToJSON()
	assert.Equal(t, "staging failed", j.Error)
	assert.Equal(t, "copy error", j.Cause)
	assert.Equal(t, "check CSV dialect", j.Fix)
	assert.Equal(t, ExitLoader, j.ExitCode)
	assert.Equal(t, string(KindStaging), j.Kind)
}

func TestFatalError_NilDoesNothing(t *testing.T) {
	FatalError(nil, false)
}
