package envelope

import "encoding/hex"

// hexEncode renders b as lowercase hex, matching the identity registry's
// public-key serialization convention.
func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
