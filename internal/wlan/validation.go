package wlan

import (
	"fmt"

	"github.com/muurk/simplelink/internal/transport"
)

// Credentials identify the network to associate with.
type Credentials struct {
	SSID     string
	Key      string
	Security transport.Security
}

// Open reports whether the credentials select an unsecured association.
func (c Credentials) Open() bool {
	return c.Security == transport.SecurityOpen || c.Key == ""
}

// Validate checks every field and returns the first failure.
func (c Credentials) Validate(op string) error {
	if err := ValidateSecurity(op, c.Security); err != nil {
		return err
	}
	if err := ValidateSSID(op, c.SSID); err != nil {
		return err
	}
	return ValidateKey(op, c.Key)
}

// ValidateSSID validates a network name
// Must be 1-32 bytes
func ValidateSSID(op, ssid string) error {
	if ssid == "" {
		return NewInvalidArgumentError(op, "SSID cannot be empty")
	}
	if len(ssid) > transport.MaxSSIDLen {
		return NewInvalidArgumentError(op, fmt.Sprintf("SSID too long (%d bytes, max %d)", len(ssid), transport.MaxSSIDLen))
	}
	return nil
}

// ValidateKey validates a network key
// Must be at most 32 bytes
func ValidateKey(op, key string) error {
	if len(key) > transport.MaxKeyLen {
		return NewInvalidArgumentError(op, fmt.Sprintf("key too long (%d bytes, max %d)", len(key), transport.MaxKeyLen))
	}
	return nil
}

// ValidateSecurity validates a security mode
// Must be one of open, wep, wpa, wpa2
func ValidateSecurity(op string, sec transport.Security) error {
	if !sec.Valid() {
		return NewInvalidArgumentError(op, fmt.Sprintf("unknown security mode %d", sec))
	}
	return nil
}
