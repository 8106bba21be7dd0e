package core

import (
	"fmt"
	"math/big"
	"strings"
)

//
// Helper formatting functions.
//

// FormatBigInt formats a big.Int by showing only the first n digits.
func FormatBigInt(n *big.Int, digits int) string {
	if n == nil {
		return "<nil>"
	}
	str := n.String()
	if len(str) > digits {
		return str[:digits] + "..."
	}
	return str
}

// String satisfies the fmt.Stringer interface for RsaKey. Private material is
// never printed.
func (key RsaKey) String() string {
	var b strings.Builder
	b.WriteString("RsaKey {\n")
	b.WriteString(fmt.Sprintf("# N: %s\n", FormatBigInt(key.N, 32)))
	b.WriteString(fmt.Sprintf("# E: %s\n", FormatBigInt(key.E, 32)))
	b.WriteString(fmt.Sprintf("# Bits: %d\n", bitLen(key.N)))
	b.WriteString("}\n")
	return b.String()
}

// String satisfies the fmt.Stringer interface for PublicKey.
func (pub PublicKey) String() string {
	return fmt.Sprintf("PublicKey{N: %s, E: %s}", FormatBigInt(pub.N, 32), FormatBigInt(pub.E, 32))
}

func bitLen(n *big.Int) int {
	if n == nil {
		return 0
	}
	return n.BitLen()
}
