package service

import (
	"payx/internal/core/domain"
)

// HmacSignatureService implements ports.SignatureService with
// HMAC-SHA256 over the exact payload bytes.
type HmacSignatureService struct{}

// NewHmacSignatureService creates a new HMAC signature service.
func NewHmacSignatureService() *HmacSignatureService {
	return &HmacSignatureService{}
}

// Sign produces "sha256=" followed by the lowercase hex digest.
func (s *HmacSignatureService) Sign(secret string, payload []byte) string {
	return domain.SignPayload(payload, secret)
}

// Verify checks a signature in constant time.
func (s *HmacSignatureService) Verify(secret string, payload []byte, signature string) bool {
	return domain.VerifySignature(payload, secret, signature)
}
