package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("doc-1", "batches/b-1/doc-1_invoice.pdf")
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	docID, path, _, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "doc-1", docID)
	require.Equal(t, "batches/b-1/doc-1_invoice.pdf", path)
}

func TestSignedURLTamperedSignature(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, _, err := signer.Generate("doc-1", "batches/b-1/doc-1_invoice.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token + "ff")
	require.Error(t, err)
}

func TestSignedURLExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", -time.Minute)
	signer.ttl = -time.Minute

	token, _, err := signer.Generate("doc-1", "batches/b-1/doc-1_invoice.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token)
	require.ErrorContains(t, err, "expired")
}

func TestSignedURLRequiresInputs(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	_, _, err := signer.Generate("", "path")
	require.Error(t, err)

	_, _, err = signer.Generate("doc-1", "")
	require.Error(t, err)
}
