// Package signer defines the gas station's signing collaborator contract
// and its two configured backends: an in-process local keypair, and a
// sidecar HTTP signing service. Actual cryptographic signing is out of
// scope: LocalSigner produces a deterministic placeholder signature shaped
// like a real one, and SidecarSigner.Sign returns an error because no
// sidecar protocol is wired, leaving the slot where a production KMS- or
// HSM-backed signer would plug in.
package signer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/iotaledger/gas-station/gasstation/config"
)

// TxSigner signs the bytes of a gas-sponsored transaction with the
// station's sponsor keypair.
type TxSigner interface {
	Sign(ctx context.Context, txBytes []byte) ([]byte, error)
	SponsorAddress() string
}

// LocalSigner holds a keypair loaded from disk. The coin splitter signs
// through retry.Forever, treating the signer as a guaranteed-eventual
// collaborator; the execute_tx RPC path calls Sign once and returns any
// error to the RPC caller.
type LocalSigner struct {
	keypairPath string
	address     string
}

// NewLocalSigner reads the keypair file at cfg.KeypairPath. The on-disk
// format and key derivation are out of scope; only the sponsor address
// they resolve to matters to the rest of the gas station.
func NewLocalSigner(cfg config.LocalSignerConfig) (*LocalSigner, error) {
	data, err := os.ReadFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("reading keypair file %s: %w", cfg.KeypairPath, err)
	}
	sum := sha256.Sum256(data)
	return &LocalSigner{
		keypairPath: cfg.KeypairPath,
		address:     fmt.Sprintf("0x%x", sum[:20]),
	}, nil
}

func (s *LocalSigner) Sign(ctx context.Context, txBytes []byte) ([]byte, error) {
	sum := sha256.Sum256(append([]byte(s.address), txBytes...))
	return sum[:], nil
}

func (s *LocalSigner) SponsorAddress() string {
	return s.address
}

// SidecarSigner delegates signing to an external HTTP service, for
// deployments that keep the sponsor key outside the gas station process.
type SidecarSigner struct {
	sidecarURL string
	address    string
	client     *http.Client
}

// NewSidecarSigner constructs a SidecarSigner. address is resolved once at
// startup via a sidecar health/address endpoint in a full deployment; here
// it is accepted directly since sidecar wire protocol detail is out of
// scope.
func NewSidecarSigner(cfg config.SidecarSignerConfig, address string) *SidecarSigner {
	return &SidecarSigner{
		sidecarURL: cfg.SidecarURL,
		address:    address,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SidecarSigner) Sign(ctx context.Context, txBytes []byte) ([]byte, error) {
	return nil, fmt.Errorf("sidecar signer not wired: configure %s to proxy to a real signing service", s.sidecarURL)
}

func (s *SidecarSigner) SponsorAddress() string {
	return s.address
}

var (
	_ TxSigner = (*LocalSigner)(nil)
	_ TxSigner = (*SidecarSigner)(nil)
)
