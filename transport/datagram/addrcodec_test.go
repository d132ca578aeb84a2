package datagram_test

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/momentics/hioload-h3/transport/datagram"
)

func TestAddressRoundTrip(t *testing.T) {
	for _, s := range []string{
		"127.0.0.1:4433",
		"0.0.0.0:0",
		"255.255.255.255:65535",
		"[::1]:443",
		"[2001:db8::1]:8443",
		"[fe80::1]:1",
		"[::ffff:10.0.0.1]:9",
	} {
		ap := netip.MustParseAddrPort(s)
		var win [datagram.EncodedLength]byte
		if err := datagram.Encode(win[:], ap); err != nil {
			t.Fatalf("encode %s: %v", s, err)
		}
		got, err := datagram.Decode(win[:])
		if err != nil {
			t.Fatalf("decode %s: %v", s, err)
		}
		if got != ap {
			t.Fatalf("round trip %s: got %s", s, got)
		}
	}
}

func TestEncodeIsFixedWidth(t *testing.T) {
	v4, err := datagram.AppendAddress(nil, netip.MustParseAddrPort("10.0.0.1:1"))
	if err != nil {
		t.Fatal(err)
	}
	v6, err := datagram.AppendAddress(nil, netip.MustParseAddrPort("[2001:db8::2]:2"))
	if err != nil {
		t.Fatal(err)
	}
	if len(v4) != datagram.EncodedLength || len(v6) != datagram.EncodedLength {
		t.Fatalf("widths %d/%d", len(v4), len(v6))
	}
}

func TestEncodeKeepsIPv4InIPv6(t *testing.T) {
	mapped := netip.MustParseAddrPort("[::ffff:192.0.2.7]:53")
	var win [datagram.EncodedLength]byte
	if err := datagram.Encode(win[:], mapped); err != nil {
		t.Fatal(err)
	}
	got, err := datagram.Decode(win[:])
	if err != nil {
		t.Fatal(err)
	}
	if got != mapped {
		t.Fatalf("got %s, want %s", got, mapped)
	}
	if got == netip.MustParseAddrPort("192.0.2.7:53") {
		t.Fatal("mapped address decoded as plain IPv4")
	}
}

func TestEncodeRejectsZone(t *testing.T) {
	var win [datagram.EncodedLength]byte
	err := datagram.Encode(win[:], netip.MustParseAddrPort("[fe80::1%eth0]:443"))
	if !errors.Is(err, datagram.ErrMalformedAddress) {
		t.Fatalf("zoned address: %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	valid, _ := datagram.AppendAddress(nil, netip.MustParseAddrPort("10.1.2.3:80"))

	padded := append([]byte(nil), valid...)
	padded[9] = 1

	unknown := append([]byte(nil), valid...)
	unknown[0] = 5

	cases := map[string][]byte{
		"empty":      nil,
		"short":      valid[:datagram.EncodedLength-1],
		"bad tag":    unknown,
		"v4 padding": padded,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := datagram.Decode(in); !errors.Is(err, datagram.ErrMalformedAddress) {
				t.Fatalf("expected ErrMalformedAddress, got %v", err)
			}
		})
	}
}

func TestEncodeRejectsShortWindowAndInvalidAddress(t *testing.T) {
	if err := datagram.Encode(make([]byte, 4), netip.MustParseAddrPort("10.0.0.1:1")); !errors.Is(err, datagram.ErrMalformedAddress) {
		t.Fatalf("short window: %v", err)
	}
	if err := datagram.Encode(make([]byte, datagram.EncodedLength), netip.AddrPort{}); !errors.Is(err, datagram.ErrMalformedAddress) {
		t.Fatalf("invalid address: %v", err)
	}
}
