package signer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iotaledger/gas-station/gasstation/config"
)

func TestLocalSignerSignsDeterministically(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(keyPath, []byte("test-keypair-bytes"), 0o600))

	s, err := NewLocalSigner(config.LocalSignerConfig{KeypairPath: keyPath})
	require.NoError(t, err)
	require.NotEmpty(t, s.SponsorAddress())

	sig1, err := s.Sign(context.Background(), []byte("tx-bytes"))
	require.NoError(t, err)
	sig2, err := s.Sign(context.Background(), []byte("tx-bytes"))
	require.NoError(t, err)
	require.Equal(t, sig1, sig2)

	sig3, err := s.Sign(context.Background(), []byte("different-tx-bytes"))
	require.NoError(t, err)
	require.NotEqual(t, sig1, sig3)
}

func TestLocalSignerMissingKeyfile(t *testing.T) {
	_, err := NewLocalSigner(config.LocalSignerConfig{KeypairPath: "/nonexistent/path"})
	require.Error(t, err)
}
