package config

import (
	"encoding/base64"
	"unicode/utf8"

	"github.com/zynerotech/sender/logger"
)

// DecodePassword decodes a base64-stored password. Values that are not valid
// base64 or do not decode to UTF-8 text are returned unchanged, with a
// warning, so that plaintext passwords left in old files keep working.
func DecodePassword(stored string) string {
	if stored == "" {
		return ""
	}

	decoded, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || !utf8.Valid(decoded) {
		logger.Component("config").Warn().Msg("Stored password is not base64, using it as plaintext")
		return stored
	}
	return string(decoded)
}

// EncodePassword is the inverse of DecodePassword.
func EncodePassword(plain string) string {
	return base64.StdEncoding.EncodeToString([]byte(plain))
}
