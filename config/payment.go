package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ModeSandbox    = "sandbox"
	ModeProduction = "production"
)

// MvolaConfig holds the merchant credentials for the Mvola push-payment API.
type MvolaConfig struct {
	Mode          string
	APIURL        string
	TokenURL      string
	ClientID      string
	SecretKey     string
	PartnerMSISDN string
	PartnerName   string
	Scope         string
}

// LoadMvolaConfig reads Mvola settings. ENV_MODE selects between the
// SANDBOX_ and PRODUCTION_ prefixed variables; unprefixed names override both.
func LoadMvolaConfig() MvolaConfig {
	mode := strings.ToLower(GetEnv("ENV_MODE", ModeSandbox))
	prefix := "SANDBOX_"
	if mode == ModeProduction {
		prefix = "PRODUCTION_"
	} else {
		mode = ModeSandbox
	}

	pick := func(name, def string) string {
		return GetEnv(name, GetEnv(prefix+name, def))
	}

	defaultAPI := "https://devapi.mvola.mg/mvola/mm/transactions/type/merchantpay/1.0.0"
	defaultToken := "https://devapi.mvola.mg/token"
	if mode == ModeProduction {
		defaultAPI = "https://api.mvola.mg/mvola/mm/transactions/type/merchantpay/1.0.0"
		defaultToken = "https://api.mvola.mg/token"
	}

	return MvolaConfig{
		Mode:          mode,
		APIURL:        strings.TrimRight(pick("MVOLA_API_URL", defaultAPI), "/"),
		TokenURL:      pick("MVOLA_ACCESS_TOKEN_ENDPOINT", defaultToken),
		ClientID:      pick("MVOLA_CLIENT_ID", ""),
		SecretKey:     pick("MVOLA_SECRET_KEY", ""),
		PartnerMSISDN: pick("MVOLA_PARTNER_MSISDN", ""),
		PartnerName:   strings.TrimSpace(pick("MVOLA_PARTNER_NAME", "")),
		Scope:         GetEnv("MVOLA_API_SCOPE", "merchantpay"),
	}
}

// Validate reports missing credentials or an insecure API URL.
func (c MvolaConfig) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "MVOLA_CLIENT_ID")
	}
	if c.SecretKey == "" {
		missing = append(missing, "MVOLA_SECRET_KEY")
	}
	if c.PartnerMSISDN == "" {
		missing = append(missing, "MVOLA_PARTNER_MSISDN")
	}
	if c.PartnerName == "" {
		missing = append(missing, "MVOLA_PARTNER_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("mvola settings not set: %v", missing)
	}
	if !strings.HasPrefix(c.APIURL, "https://") {
		return errors.New("MVOLA_API_URL must use https")
	}
	return nil
}

// PaypalConfig configures the redirect-based provider.
type PaypalConfig struct {
	ApprovalURL  string
	ReceiverMail string
}

func LoadPaypalConfig() PaypalConfig {
	return PaypalConfig{
		ApprovalURL:  GetEnv("PAYPAL_APPROVAL_URL", "https://www.sandbox.paypal.com/cgi-bin/webscr"),
		ReceiverMail: GetEnv("PAYPAL_RECEIVER_EMAIL", ""),
	}
}
