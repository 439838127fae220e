// Package secrets stores API keys and passwords in the OS keychain so
// they never land in the YAML config or on disk in plaintext.
package secrets

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups this app's entries in the OS keychain.
const KeyringService = "applypilot"

// Known secret names. Anything else is rejected at the API boundary.
const (
	NameOracleKey     = "oracle-api-key"
	NameResolverKey   = "resolver-api-key"
	NameSMTPPassword  = "smtp-password"
	NameIMAPPassword  = "imap-password"
	NameSessionCookie = "session-cookie"
)

func KnownName(name string) bool {
	switch name {
	case NameOracleKey, NameResolverKey, NameSMTPPassword, NameIMAPPassword, NameSessionCookie:
		return true
	}
	return false
}

func Get(name string) (string, error) {
	if !KnownName(name) {
		return "", errors.New("unknown secret name: " + name)
	}
	pw, err := keyring.Get(KeyringService, name)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(pw) == "" {
		return "", keyring.ErrNotFound
	}
	return pw, nil
}

// GetOptional is Get for secrets the engine can run without; missing
// entries come back as the empty string.
func GetOptional(name string) string {
	pw, err := Get(name)
	if err != nil {
		return ""
	}
	return pw
}

func Set(name, value string) error {
	if !KnownName(name) {
		return errors.New("unknown secret name: " + name)
	}
	if strings.TrimSpace(value) == "" {
		return errors.New("secret value is empty")
	}
	return keyring.Set(KeyringService, name, value)
}

func Delete(name string) error {
	if !KnownName(name) {
		return errors.New("unknown secret name: " + name)
	}
	return keyring.Delete(KeyringService, name)
}
