package security

import (
	"fmt"

	"github.com/pquerna/otp/totp"
)

// totpIssuer names the service in authenticator apps.
const totpIssuer = "userdir"

// GenerateTOTPSecret creates a new TOTP secret for the account and returns
// the shared secret plus the provisioning URL.
func GenerateTOTPSecret(accountName string) (secret, url string, err error) {
	key, errGenerate := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: accountName,
	})
	if errGenerate != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", errGenerate)
	}
	return key.Secret(), key.URL(), nil
}

// ValidateTOTPCode checks a submitted code against the stored secret.
func ValidateTOTPCode(secret, code string) bool {
	return totp.Validate(code, secret)
}
