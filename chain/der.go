package chain

const compactLen = 64

// DecodeDER converts an ASN.1 DER ECDSA signature (30 len 02 rLen r 02 sLen s) into
// the 64-byte r‖s form the vault's P-256 verifier takes. Leading zero bytes of r and
// s are stripped and each is left-padded to 32 bytes. A 64-byte input that is not
// DER is taken as already compact.
func DecodeDER(sig []byte) ([]byte, error) {
	r, s, err := parseDER(sig)
	if err != nil {
		if len(sig) == compactLen && !framedAsDER(sig) {
			out := make([]byte, compactLen)
			copy(out, sig)
			return out, nil
		}
		return nil, err
	}

	out := make([]byte, compactLen)
	copy(out[32-len(r):32], r)
	copy(out[64-len(s):], s)
	return out, nil
}

// framedAsDER reports a sequence header that spans the whole input with INTEGER tags
// where r and s would start, so a broken DER signature is reported instead of being
// taken for a compact one. A compact r that merely begins 0x30 0x3e is not framed.
func framedAsDER(sig []byte) bool {
	if len(sig) < 4 || sig[0] != 0x30 || int(sig[1]) != len(sig)-2 || sig[2] != 0x02 {
		return false
	}
	sTag := 4 + int(sig[3])
	return sTag < len(sig) && sig[sTag] == 0x02
}

func parseDER(sig []byte) (r, s []byte, err error) {
	if len(sig) < 8 {
		return nil, nil, sigErr("DER signature too short (%d bytes)", len(sig))
	}
	if sig[0] != 0x30 {
		return nil, nil, sigErr("missing DER sequence tag")
	}
	body, rest, err := readLength(sig[1:])
	if err != nil {
		return nil, nil, err
	}
	if len(rest) != 0 {
		return nil, nil, sigErr("trailing bytes after DER sequence")
	}

	r, body, err = readInteger(body, "r")
	if err != nil {
		return nil, nil, err
	}
	s, body, err = readInteger(body, "s")
	if err != nil {
		return nil, nil, err
	}
	if len(body) != 0 {
		return nil, nil, sigErr("trailing bytes inside DER sequence")
	}
	return r, s, nil
}

// readLength decodes a DER length (short form or one or two length bytes) and
// splits b into the value and what follows it.
func readLength(b []byte) (value, rest []byte, err error) {
	if len(b) == 0 {
		return nil, nil, sigErr("missing DER length")
	}
	n := int(b[0])
	b = b[1:]
	if n&0x80 != 0 {
		width := n & 0x7f
		if width == 0 || width > 2 || len(b) < width {
			return nil, nil, sigErr("unsupported DER length encoding")
		}
		n = 0
		for _, c := range b[:width] {
			n = n<<8 | int(c)
		}
		b = b[width:]
	}
	if n > len(b) {
		return nil, nil, sigErr("DER length %d exceeds remaining %d bytes", n, len(b))
	}
	return b[:n], b[n:], nil
}

func readInteger(b []byte, name string) (value, rest []byte, err error) {
	if len(b) == 0 || b[0] != 0x02 {
		return nil, nil, sigErr("missing DER integer tag for %s", name)
	}
	value, rest, err = readLength(b[1:])
	if err != nil {
		return nil, nil, err
	}
	if len(value) == 0 {
		return nil, nil, sigErr("empty %s", name)
	}
	for len(value) > 0 && value[0] == 0 {
		value = value[1:]
	}
	if len(value) == 0 {
		return nil, nil, sigErr("%s is zero", name)
	}
	if len(value) > 32 {
		return nil, nil, sigErr("%s overflows 32 bytes (%d)", name, len(value))
	}
	return value, rest, nil
}
