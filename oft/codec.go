// Package oft implements the binary codec for the LayerZero OFT "send" call,
// the single call shape this tool rewrites. The encoding is the canonical
// Ethereum ABI layout: a 4-byte function selector followed by the dynamic
// tuple encoding of (SendParams, MessagingFee, refundAddress).
package oft

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// SendSelector identifies
	// send((uint32,bytes32,uint256,uint256,bytes,bytes,bytes),(uint256,uint256),address).
	SendSelector = [4]byte{0xc7, 0xc7, 0xf5, 0xb3}

	// ApproveSelector identifies approve(address,uint256). It is only used to
	// classify steps; approval calldata is never decoded further.
	ApproveSelector = [4]byte{0x09, 0x5e, 0xa7, 0xb3}
)

var (
	// ErrSelectorMismatch is returned by DecodeSend when the calldata does not
	// start with SendSelector.
	ErrSelectorMismatch = errors.New("oft: selector mismatch")

	// ErrMalformed is returned by DecodeSend when the calldata carries the
	// right selector but its body does not parse as a canonical encoding of
	// the send argument tuple.
	ErrMalformed = errors.New("oft: malformed calldata")
)

// SendParams mirrors the first argument tuple of the send call. Amounts are
// unsigned 256-bit values; the three byte fields are opaque and may be empty.
type SendParams struct {
	DstEid       uint32
	To           [32]byte
	AmountLD     *big.Int
	MinAmountLD  *big.Int
	ExtraOptions []byte
	ComposeMsg   []byte
	OftCmd       []byte
}

// MessagingFee mirrors the second argument tuple of the send call.
type MessagingFee struct {
	NativeFee  *big.Int
	LzTokenFee *big.Int
}

// SendCall is one fully decoded send invocation. Refund is the only field
// this tool ever rewrites; Params and Fee pass through unchanged.
type SendCall struct {
	Params SendParams
	Fee    MessagingFee
	Refund common.Address
}

// sendArgs is the ABI argument list of the send function, built once at
// package load. The component names must match the Go struct field names
// (camel-cased) for pack/unpack reflection to line up.
var sendArgs abi.Arguments

func init() {
	paramsTy, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "dstEid", Type: "uint32"},
		{Name: "to", Type: "bytes32"},
		{Name: "amountLD", Type: "uint256"},
		{Name: "minAmountLD", Type: "uint256"},
		{Name: "extraOptions", Type: "bytes"},
		{Name: "composeMsg", Type: "bytes"},
		{Name: "oftCmd", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	feeTy, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "nativeFee", Type: "uint256"},
		{Name: "lzTokenFee", Type: "uint256"},
	})
	if err != nil {
		panic(err)
	}
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	sendArgs = abi.Arguments{
		{Name: "sendParam", Type: paramsTy},
		{Name: "fee", Type: feeTy},
		{Name: "refundAddress", Type: addressTy},
	}
}

// EncodeSend serializes the call to selector-prefixed ABI calldata. It fails
// only when one of the integer fields falls outside the unsigned 256-bit
// range; nil integers encode as zero.
func EncodeSend(call SendCall) ([]byte, error) {
	params := call.Params
	params.AmountLD = normU256(params.AmountLD)
	params.MinAmountLD = normU256(params.MinAmountLD)
	fee := call.Fee
	fee.NativeFee = normU256(fee.NativeFee)
	fee.LzTokenFee = normU256(fee.LzTokenFee)

	for name, v := range map[string]*big.Int{
		"amountLD":    params.AmountLD,
		"minAmountLD": params.MinAmountLD,
		"nativeFee":   fee.NativeFee,
		"lzTokenFee":  fee.LzTokenFee,
	} {
		if v.Sign() < 0 || v.BitLen() > 256 {
			return nil, fmt.Errorf("oft: %s out of uint256 range", name)
		}
	}

	body, err := sendArgs.Pack(params, fee, call.Refund)
	if err != nil {
		return nil, fmt.Errorf("oft: pack send call: %w", err)
	}
	return append(SendSelector[:], body...), nil
}

// DecodeSend parses selector-prefixed calldata back into a SendCall. The
// decode is strict: after unpacking, the triple is re-encoded and compared
// byte-for-byte against the input so that truncated bodies, spurious
// trailing data and non-canonical padding are all rejected with ErrMalformed
// instead of being silently normalized.
func DecodeSend(data []byte) (SendCall, error) {
	if len(data) < 4 {
		return SendCall{}, fmt.Errorf("%w: calldata shorter than a selector (%d bytes)", ErrMalformed, len(data))
	}
	if !bytes.Equal(data[:4], SendSelector[:]) {
		return SendCall{}, fmt.Errorf("%w: got 0x%x, want 0x%x", ErrSelectorMismatch, data[:4], SendSelector)
	}

	vals, err := sendArgs.Unpack(data[4:])
	if err != nil {
		return SendCall{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(vals) != 3 {
		return SendCall{}, fmt.Errorf("%w: unexpected argument count %d", ErrMalformed, len(vals))
	}

	call := SendCall{
		Params: *abi.ConvertType(vals[0], new(SendParams)).(*SendParams),
		Fee:    *abi.ConvertType(vals[1], new(MessagingFee)).(*MessagingFee),
		Refund: *abi.ConvertType(vals[2], new(common.Address)).(*common.Address),
	}

	canonical, err := EncodeSend(call)
	if err != nil {
		return SendCall{}, fmt.Errorf("%w: re-encode failed: %v", ErrMalformed, err)
	}
	if !bytes.Equal(canonical, data) {
		return SendCall{}, fmt.Errorf("%w: non-canonical encoding", ErrMalformed)
	}
	return call, nil
}

// Equal reports structural equality over every field.
func (c SendCall) Equal(o SendCall) bool {
	return c.Params.Equal(o.Params) && c.Fee.Equal(o.Fee) && c.Refund == o.Refund
}

// Equal reports structural equality; nil integers compare equal to zero.
func (p SendParams) Equal(o SendParams) bool {
	return p.DstEid == o.DstEid &&
		p.To == o.To &&
		cmpU256(p.AmountLD, o.AmountLD) &&
		cmpU256(p.MinAmountLD, o.MinAmountLD) &&
		bytes.Equal(p.ExtraOptions, o.ExtraOptions) &&
		bytes.Equal(p.ComposeMsg, o.ComposeMsg) &&
		bytes.Equal(p.OftCmd, o.OftCmd)
}

// Equal reports structural equality; nil integers compare equal to zero.
func (f MessagingFee) Equal(o MessagingFee) bool {
	return cmpU256(f.NativeFee, o.NativeFee) && cmpU256(f.LzTokenFee, o.LzTokenFee)
}

func normU256(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func cmpU256(a, b *big.Int) bool {
	return normU256(a).Cmp(normU256(b)) == 0
}
