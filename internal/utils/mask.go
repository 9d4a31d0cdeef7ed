package utils

// MaskSecret hides all but a short prefix of a credential for log output.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "*****"
	}
	return s[:2] + "*****"
}
