package utils

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the internal sentinel for a chain's native asset.
var ZeroAddress = common.Address{}

// OneInchNativeAddress is the reserved address 1inch uses for native assets
// on the wire. Internally the zero address always denotes native.
var OneInchNativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// MaxUint256 is the largest representable ERC20 amount, used for unlimited
// approvals.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// IsNative reports whether the address denotes the chain's native asset.
func IsNative(addr common.Address) bool {
	return addr == ZeroAddress
}

// SameAddress compares two hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ToOneInchAddress remaps the internal native sentinel to the 1inch wire
// sentinel; other addresses pass through unchanged.
func ToOneInchAddress(addr common.Address) common.Address {
	if IsNative(addr) {
		return OneInchNativeAddress
	}
	return addr
}
