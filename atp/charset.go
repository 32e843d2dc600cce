package atp

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Character sets selectable with +CSCS according to [27.007] 5.5
const (
	CharsetIRA     = "IRA"
	CharsetUCS2    = "UCS2"
	CharsetHex     = "HEX"
	Charset8859_1  = "8859-1"
	Charset8859_2  = "8859-2"
	Charset8859_15 = "8859-15"
	CharsetPCCP437 = "PCCP437"
	CharsetPCDN    = "PCDN"
)

// CharsetCodecs contains encoding.Encoding instances for the 8 bit character sets. IRA, UCS2 and HEX
// are handled separately.
var CharsetCodecs = map[string]encoding.Encoding{
	Charset8859_1:  charmap.ISO8859_1,
	Charset8859_2:  charmap.ISO8859_2,
	Charset8859_15: charmap.ISO8859_15,
	CharsetPCCP437: charmap.CodePage437,
	CharsetPCDN:    charmap.CodePage865,
}

var ucs2 = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// Charsets returns the names of all supported character sets in alphabetical order.
func Charsets() []string {
	result := make([]string, 0, len(CharsetCodecs)+3)
	for k := range CharsetCodecs {
		result = append(result, k)
	}
	result = append(result, CharsetIRA, CharsetUCS2, CharsetHex)
	sort.Strings(result)
	return result
}

// ValidCharset reports if the given character set is supported.
func ValidCharset(charset string) bool {
	sanitized := strings.ToUpper(strings.TrimSpace(charset))
	switch sanitized {
	case CharsetIRA, CharsetUCS2, CharsetHex:
		return true
	}
	_, ok := CharsetCodecs[sanitized]
	return ok
}

var hexSanitizer = regexp.MustCompile(`\s+`)

// HexToBinary converts the hex representation used for binary data on the AT interface into a slice of bytes
func HexToBinary(s string) ([]byte, error) {
	sanitized := hexSanitizer.ReplaceAllString(s, "")
	return hex.DecodeString(sanitized)
}

// BinaryToHex converts a slice of bytes into the hex representation used for binary data on the AT interface
func BinaryToHex(data []byte) string {
	return strings.ToUpper(hex.EncodeToString(data))
}

// DecodeText converts text received in the given TE character set into a UTF-8 string.
func DecodeText(charset string, data []byte) (string, error) {
	sanitized := strings.ToUpper(strings.TrimSpace(charset))
	switch sanitized {
	case CharsetIRA:
		// 7 bit, the eighth bit is parity and ignored ([V.250] 5.1)
		result := make([]byte, len(data))
		for i, b := range data {
			result[i] = b & 0x7f
		}
		return string(result), nil
	case CharsetHex:
		raw, err := HexToBinary(string(data))
		if err != nil {
			return "", fmt.Errorf("cannot decode hex data: %w", err)
		}
		return string(raw), nil
	case CharsetUCS2:
		raw, err := HexToBinary(string(data))
		if err != nil {
			return "", fmt.Errorf("cannot decode UCS2 hex data: %w", err)
		}
		result, err := ucs2.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("cannot decode UCS2 text: %w", err)
		}
		return string(result), nil
	}

	codec, ok := CharsetCodecs[sanitized]
	if !ok {
		return "", fmt.Errorf("unsupported character set %s", charset)
	}
	result, err := codec.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("cannot decode %s text: %w", sanitized, err)
	}
	return string(result), nil
}

// EncodeText converts a UTF-8 string into the given TE character set.
func EncodeText(charset string, text string) ([]byte, error) {
	sanitized := strings.ToUpper(strings.TrimSpace(charset))
	switch sanitized {
	case CharsetIRA:
		for _, r := range text {
			if r >= 0x80 {
				return nil, fmt.Errorf("cannot encode %q in IRA", r)
			}
		}
		return []byte(text), nil
	case CharsetHex:
		return []byte(BinaryToHex([]byte(text))), nil
	case CharsetUCS2:
		raw, err := ucs2.NewEncoder().Bytes([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("cannot encode UCS2 text: %w", err)
		}
		return []byte(BinaryToHex(raw)), nil
	}

	codec, ok := CharsetCodecs[sanitized]
	if !ok {
		return nil, fmt.Errorf("unsupported character set %s", charset)
	}
	result, err := codec.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("cannot encode %s text: %w", sanitized, err)
	}
	return result, nil
}
