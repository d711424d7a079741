package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {

	codec := NewTokenCodec([]byte("test-secret"))

	token, err := codec.Encode(PurposeApproval, "89f6a3e0-0000-0000-0000-000000000001", 42)
	require.NoError(t, err)

	action, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, PurposeApproval, action.Purpose)
	assert.Equal(t, "89f6a3e0-0000-0000-0000-000000000001", action.SanctionID)
	assert.Equal(t, 42, action.ActorID)
}

func TestTokenPurposes(t *testing.T) {

	codec := NewTokenCodec([]byte("test-secret"))

	approval, err := codec.Encode(PurposeApproval, "s1", 1)
	require.NoError(t, err)
	rejection, err := codec.Encode(PurposeRejection, "s1", 1)
	require.NoError(t, err)

	// same sanction and actor, but distinct tokens
	assert.NotEqual(t, approval, rejection)

	action, err := codec.Decode(rejection)
	require.NoError(t, err)
	assert.Equal(t, PurposeRejection, action.Purpose)
}

func TestTokenMalformed(t *testing.T) {

	codec := NewTokenCodec([]byte("test-secret"))

	_, err := codec.Decode("")
	assert.Error(t, err)

	_, err = codec.Decode("not-a-token")
	assert.Error(t, err)

	token, err := codec.Encode(PurposeApproval, "s1", 1)
	require.NoError(t, err)

	// tampering breaks the signature
	_, err = codec.Decode(token + "x")
	assert.Error(t, err)
}

func TestTokenWrongSecret(t *testing.T) {

	token, err := NewTokenCodec([]byte("secret-a")).Encode(PurposeApproval, "s1", 1)
	require.NoError(t, err)

	_, err = NewTokenCodec([]byte("secret-b")).Decode(token)
	assert.Error(t, err)
}
