// File: transport/datagram/addrcodec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package datagram

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// EncodedLength is the fixed width of an encoded address: a family tag,
// 16 address bytes and a big-endian port.
const EncodedLength = 1 + 16 + 2

const (
	familyIPv4 byte = 4
	familyIPv6 byte = 6
)

// ErrMalformedAddress is returned when an address window cannot be decoded
// or an address cannot be encoded.
var ErrMalformedAddress = errors.New("datagram: malformed address")

// Encode writes ap into dst[:EncodedLength]. IPv4-mapped IPv6 addresses
// keep the IPv6 tag so they decode unchanged. Zoned addresses are not
// representable and are rejected.
func Encode(dst []byte, ap netip.AddrPort) error {
	if len(dst) < EncodedLength {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedAddress, EncodedLength, len(dst))
	}
	addr := ap.Addr()
	if !addr.IsValid() {
		return fmt.Errorf("%w: invalid address %v", ErrMalformedAddress, ap)
	}
	if addr.Zone() != "" {
		return fmt.Errorf("%w: zoned address %v", ErrMalformedAddress, ap)
	}
	win := dst[:EncodedLength]
	clear(win)
	if addr.Is4() {
		win[0] = familyIPv4
		a4 := addr.As4()
		copy(win[1:5], a4[:])
	} else {
		win[0] = familyIPv6
		a16 := addr.As16()
		copy(win[1:17], a16[:])
	}
	binary.BigEndian.PutUint16(win[17:], ap.Port())
	return nil
}

// AppendAddress appends the encoding of ap to dst.
func AppendAddress(dst []byte, ap netip.AddrPort) ([]byte, error) {
	var win [EncodedLength]byte
	if err := Encode(win[:], ap); err != nil {
		return dst, err
	}
	return append(dst, win[:]...), nil
}

// Decode reads the address encoded in src[:EncodedLength].
func Decode(src []byte) (netip.AddrPort, error) {
	if len(src) < EncodedLength {
		return netip.AddrPort{}, fmt.Errorf("%w: short window of %d bytes", ErrMalformedAddress, len(src))
	}
	port := binary.BigEndian.Uint16(src[17:EncodedLength])
	switch src[0] {
	case familyIPv4:
		for _, b := range src[5:17] {
			if b != 0 {
				return netip.AddrPort{}, fmt.Errorf("%w: non-zero IPv4 padding", ErrMalformedAddress)
			}
		}
		return netip.AddrPortFrom(netip.AddrFrom4([4]byte(src[1:5])), port), nil
	case familyIPv6:
		return netip.AddrPortFrom(netip.AddrFrom16([16]byte(src[1:17])), port), nil
	default:
		return netip.AddrPort{}, fmt.Errorf("%w: unknown family tag %d", ErrMalformedAddress, src[0])
	}
}
