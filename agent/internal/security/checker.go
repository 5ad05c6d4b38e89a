package security

import (
	"crypto/tls"
	"math"
	"time"
)

// Certificate status values.
const (
	StatusValid    = "valid"
	StatusExpiring = "expiring"
	StatusExpired  = "expired"
	StatusNone     = "none"
)

// ExpiringWithin is the window in which a certificate counts as expiring.
const ExpiringWithin = 30 * 24 * time.Hour

// CertStatus describes the leaf certificate of a TLS connection.
type CertStatus struct {
	Status   string
	NotAfter string // RFC3339, UTC
	DaysLeft int
	Issuer   string
}

// Inspect classifies the peer's leaf certificate relative to now. A state
// without peer certificates yields StatusNone.
func Inspect(state tls.ConnectionState, now time.Time) CertStatus {
	if len(state.PeerCertificates) == 0 {
		return CertStatus{Status: StatusNone}
	}

	leaf := state.PeerCertificates[0]
	left := leaf.NotAfter.Sub(now)

	cs := CertStatus{
		NotAfter: leaf.NotAfter.UTC().Format(time.RFC3339),
		DaysLeft: int(math.Floor(left.Hours() / 24)),
		Issuer:   leaf.Issuer.CommonName,
	}
	switch {
	case left <= 0:
		cs.Status = StatusExpired
	case left <= ExpiringWithin:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
	return cs
}
