package socket

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
)

// Reserved protocol separator characters. Tokens are joined with ','
// and instructions terminated with ';'. String payloads containing any
// of these must be escaped by the caller before writing; the codec does
// not validate.
const (
	argSeparator          = ','
	instructionTerminator = ';'
)

// base64Alphabet is the standard base64 alphabet used for inline binary
// payloads.
const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// appendIntToken appends the length-prefixed wire form of v to dst:
// the decimal byte length of the payload, a '.', then the payload as
// decimal ASCII. No leading zeros except for the value 0, no sign for
// non-negative values.
func appendIntToken(dst []byte, v int64) []byte {
	var num [20]byte // fits int64 including sign
	payload := strconv.AppendInt(num[:0], v, 10)

	dst = strconv.AppendInt(dst, int64(len(payload)), 10)
	dst = append(dst, '.')
	return append(dst, payload...)
}

// appendStringToken appends the length-prefixed wire form of s to dst.
// The length counts bytes, not runes. Separator characters in s are not
// escaped here; that is the caller's contract.
func appendStringToken(dst []byte, s string) []byte {
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = append(dst, '.')
	return append(dst, s...)
}

// parseToken reads one length-prefixed token from the front of data,
// returning the payload and the remaining bytes (including any trailing
// separator, which the token framing does not own).
func parseToken(data []byte) (payload, rest []byte, err error) {
	dot := bytes.IndexByte(data, '.')
	if dot < 1 {
		return nil, nil, errors.New("token missing length prefix")
	}

	n, err := strconv.Atoi(string(data[:dot]))
	if err != nil {
		return nil, nil, errors.Wrap(err, "token length")
	}
	if n < 0 || dot+1+n > len(data) {
		return nil, nil, errors.Errorf("token length %d exceeds available data", n)
	}

	return data[dot+1 : dot+1+n], data[dot+1+n:], nil
}

// parseIntToken reads one length-prefixed integer token from the front
// of data.
func parseIntToken(data []byte) (v int64, rest []byte, err error) {
	payload, rest, err := parseToken(data)
	if err != nil {
		return 0, nil, err
	}

	v, err = strconv.ParseInt(string(payload), 10, 64)
	if err != nil {
		return 0, nil, errors.Wrap(err, "integer token")
	}
	return v, rest, nil
}

// encodeBase64Group encodes n (1..3) input bytes from b into dst as one
// 4-character base64 group, padding with '=' when n < 3. Unused input
// positions are ignored regardless of their contents.
func encodeBase64Group(dst *[4]byte, b [3]byte, n int) {
	if n < 3 {
		b[2] = 0
	}
	if n < 2 {
		b[1] = 0
	}

	dst[0] = base64Alphabet[b[0]>>2]
	dst[1] = base64Alphabet[(b[0]&0x03)<<4|b[1]>>4]

	if n > 1 {
		dst[2] = base64Alphabet[(b[1]&0x0F)<<2|b[2]>>6]
	} else {
		dst[2] = '='
	}

	if n > 2 {
		dst[3] = base64Alphabet[b[2]&0x3F]
	} else {
		dst[3] = '='
	}
}
