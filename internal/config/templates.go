package config

import (
	"fmt"
	"os"
)

// Template returns the commented starter config written by `config init`.
func Template() string {
	return defaultTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o600)
}

const defaultTemplate = `[log]
level = "info"
timestamp = true
no_color = false
bypass = false

[codec]
# Largest buffered payload accepted for invoice_request and invoice.
max_payload_bytes = 65535

[dispatch]
workers = 4

[server]
addr = ":9400"
cors_origins = ["http://localhost:3000"]
# Bearer token for POST routes. Empty disables auth.
token = ""

[responder]
description = "offersctl demo offer"
issuer = ""
amount_msats = 1000
quantity_max = 0
relative_expiry = 3600
# 32-byte hex secret for the offer issuer key. Empty generates one per run.
node_secret_hex = ""
`
