package certs

import (
	"fmt"
	"time"

	"github.com/zynerotech/sender/logger"
)

// ExpiryWarning flags a certificate whose validity window has ended.
type ExpiryWarning struct {
	Subject  string
	NotAfter time.Time
}

func (w ExpiryWarning) String() string {
	return fmt.Sprintf("certificate expired: %s (not after %s)", w.Subject, w.NotAfter.UTC().Format(time.RFC3339))
}

// Validate checks that path exists and holds at least one certificate.
// Expired certificates do not fail validation; each one is logged and
// returned as a warning.
func Validate(path string) ([]ExpiryWarning, error) {
	return validateAt(path, time.Now())
}

func validateAt(path string, now time.Time) ([]ExpiryWarning, error) {
	certs, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	log := logger.Component("certs")

	var warnings []ExpiryWarning
	for _, c := range certs {
		if !c.Expired(now) {
			continue
		}
		w := ExpiryWarning{Subject: c.Subject, NotAfter: c.NotAfter}
		warnings = append(warnings, w)
		log.Warn().
			Str("path", path).
			Str("subject", c.Subject).
			Time("not_after", c.NotAfter).
			Msg("Certificate expired")
	}

	return warnings, nil
}
