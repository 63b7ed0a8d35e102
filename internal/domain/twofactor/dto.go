// internal/domain/twofactor/dto.go
package twofactor

// SetupResponse is returned when 2FA enrollment starts. The secret is
// shown once for manual entry; the URI renders as a QR code client-side.
type SetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// VerifySetupRequest consumes the first code from the authenticator app.
type VerifySetupRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// VerifySetupResponse carries the backup codes, returned exactly once.
type VerifySetupResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// DisableRequest turns 2FA off; the password is re-confirmed.
type DisableRequest struct {
	Password string `json:"password" binding:"required"`
}

// RegenerateBackupCodesRequest replaces the backup code set.
type RegenerateBackupCodesRequest struct {
	Password string `json:"password" binding:"required"`
}
