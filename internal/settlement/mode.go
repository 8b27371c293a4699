package settlement

import "github.com/clockpay/backend/internal/models"

// Mode is resolved once per attempt from the payer wallet and drives the
// hot-wallet vs manual-signing branch.
type Mode interface {
	isMode()
}

// HotMode carries the sealed signing secret; the server signs and submits.
type HotMode struct {
	SecretCiphertext string
}

// ManualMode means signing happens client-side; the server only records the
// reported transaction hash later.
type ManualMode struct{}

func (HotMode) isMode()    {}
func (ManualMode) isMode() {}

// resolveMode classifies the wallet. A wallet flagged for manual signing, or
// one without a stored secret, can never be used to sign server-side.
func resolveMode(w *models.Wallet) Mode {
	if w.RequiresManualSigning || w.SecretCiphertext == nil || *w.SecretCiphertext == "" {
		return ManualMode{}
	}
	return HotMode{SecretCiphertext: *w.SecretCiphertext}
}
