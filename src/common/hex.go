package common

import (
	"encoding/hex"
	"strings"
)

//EncodeToString returns the lowercase hex representation of hexBytes, without
//prefix, which is the form identifiers take on the feed.
func EncodeToString(hexBytes []byte) string {
	return hex.EncodeToString(hexBytes)
}

//DecodeFromString converts a hex string, with or without the 0x or 0X prefix,
//to a byte slice
func DecodeFromString(hexString string) ([]byte, error) {
	if strings.HasPrefix(hexString, "0x") || strings.HasPrefix(hexString, "0X") {
		hexString = hexString[2:]
	}
	return hex.DecodeString(hexString)
}
