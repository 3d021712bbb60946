package michelson

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// The well-known Tezos Base58Check prefix bytes for each textual address
// form. DecodeAddress picks one from the tag byte the 44-hex-char Michelson
// encoding starts with (0x00 = tz1/tz2/tz3 depending on the curve tag that
// follows, 0x01 = KT1 originated contract).
var (
	prefixTz1 = []byte{6, 161, 159}
	prefixTz2 = []byte{6, 161, 161}
	prefixTz3 = []byte{6, 161, 164}
	prefixKT1 = []byte{2, 90, 121}
)

// DecodeAddress converts the 44-hex-character binary encoding a Michelson
// `address` leaf carries into its textual tz1/tz2/tz3/KT1 Base58Check form.
// Input that isn't the expected shape is returned unchanged, per spec.md
// §4.4's "otherwise pass through" rule.
func DecodeAddress(hexStr string) string {
	raw, err := hex.DecodeString(hexStr)
	if err != nil || len(raw) < 21 {
		return hexStr
	}

	var prefix []byte
	var payload []byte
	switch {
	case raw[0] == 0x00 && len(raw) >= 22:
		// 0x00 <curve tag> <20-byte hash>
		switch raw[1] {
		case 0x00:
			prefix = prefixTz1
		case 0x01:
			prefix = prefixTz2
		case 0x02:
			prefix = prefixTz3
		default:
			return hexStr
		}
		payload = raw[2:22]
	case raw[0] == 0x01 && len(raw) >= 22:
		// 0x01 <20-byte hash> 0x00 (originated contract)
		prefix = prefixKT1
		payload = raw[1:21]
	default:
		return hexStr
	}

	return base58CheckEncode(prefix, payload)
}

// base58CheckEncode implements Tezos's Base58Check variant: prefix bytes
// are prepended to the payload before the double-SHA256 checksum is
// computed and appended, then the whole thing is Base58-encoded.
func base58CheckEncode(prefix, payload []byte) string {
	buf := make([]byte, 0, len(prefix)+len(payload))
	buf = append(buf, prefix...)
	buf = append(buf, payload...)

	h1 := sha256.Sum256(buf)
	h2 := sha256.Sum256(h1[:])
	checksum := h2[:4]

	full := append(buf, checksum...)
	return base58.Encode(full)
}

// EncodeAddress reverses DecodeAddress: given a tz1/tz2/tz3/KT1 textual
// address, produce the 44-hex-character Michelson binary encoding.
func EncodeAddress(addr string) (string, error) {
	if len(addr) < 3 {
		return "", fmt.Errorf("address too short: %q", addr)
	}
	full, err := base58.Decode(addr)
	if err != nil {
		return "", fmt.Errorf("base58 decode %q: %w", addr, err)
	}
	if len(full) < 4+20 {
		return "", fmt.Errorf("decoded address too short: %q", addr)
	}
	payload := full[:len(full)-4]

	switch addr[:3] {
	case "tz1":
		return "0000" + hex.EncodeToString(payload[len(prefixTz1):]), nil
	case "tz2":
		return "0001" + hex.EncodeToString(payload[len(prefixTz2):]), nil
	case "tz3":
		return "0002" + hex.EncodeToString(payload[len(prefixTz3):]), nil
	case "KT1":
		return "01" + hex.EncodeToString(payload[len(prefixKT1):]) + "00", nil
	default:
		return "", fmt.Errorf("unrecognized address prefix: %q", addr)
	}
}
