// Package txsize estimates the serialized size of Decred transactions before
// they are built and signed, so a fee can be attached up front.
package txsize

import (
	"github.com/decred/dcrd/wire"
)

const (
	// baseTxSize is the size of the fixed fields of a full serialized
	// transaction: version and serialization type (4), lock time (4) and
	// expiry (4).
	baseTxSize = 4 + 4 + 4

	// inputPrefixSize is the size of the prefix part of an input: previous
	// outpoint hash (32), index (4), tree (1) and sequence (4).
	inputPrefixSize = 32 + 4 + 1 + 4

	// inputWitnessBaseSize is the size of the witness part of an input
	// without its signature script: value in (8), block height (4) and
	// block index (4).
	inputWitnessBaseSize = 8 + 4 + 4

	// outputBaseSize is the size of an output without its pkScript: value
	// (8) and script version (2).
	outputBaseSize = 8 + 2

	// P2PKHPkScriptSize is the size of a version 0 P2PKH pkScript:
	// OP_DUP OP_HASH160 OP_DATA_20 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG.
	P2PKHPkScriptSize = 1 + 1 + 1 + 20 + 1 + 1

	// P2SHPkScriptSize is the size of a version 0 P2SH pkScript:
	// OP_HASH160 OP_DATA_20 <20 bytes> OP_EQUAL.
	P2SHPkScriptSize = 1 + 1 + 20 + 1

	// RedeemP2PKHSigScriptSize is the worst case size of the signature
	// script redeeming a P2PKH output: OP_DATA_73 <73 byte sig + sighash>
	// OP_DATA_33 <33 byte compressed pubkey>.
	RedeemP2PKHSigScriptSize = 1 + 73 + 1 + 33

	// P2PKHOutputSize is the serialized size of a P2PKH output.
	P2PKHOutputSize = outputBaseSize + 1 + P2PKHPkScriptSize

	// P2SHOutputSize is the serialized size of a P2SH output.
	P2SHOutputSize = outputBaseSize + 1 + P2SHPkScriptSize

	// RedeemP2PKHInputSize is the worst case serialized size of an input
	// redeeming a P2PKH output, both prefix and witness.
	RedeemP2PKHInputSize = inputPrefixSize + inputWitnessBaseSize + 1 +
		RedeemP2PKHSigScriptSize
)

// canonicalPushSize returns the size of the opcodes canonically pushing data of
// the given length onto the stack, excluding the data itself.
func canonicalPushSize(dataLen int) int64 {
	switch {
	case dataLen <= 75:
		return 1
	case dataLen <= 0xff:
		return 2
	case dataLen <= 0xffff:
		return 3
	default:
		return 5
	}
}

// RedeemP2SHSigScriptSize returns the worst case size of the signature script
// redeeming a P2SH output with numSigs signatures followed by the redeem
// script: numSigs x (OP_DATA_73 <73 byte sig + sighash>) <push redeem script>.
func RedeemP2SHSigScriptSize(numSigs int, redeemScriptSize int) int64 {
	return int64(numSigs)*(1+73) + canonicalPushSize(redeemScriptSize) +
		int64(redeemScriptSize)
}

// TxSizeEstimator is able to calculate the full serialized size of a
// transaction as inputs and outputs are added to it.
type TxSizeEstimator struct {
	inputCount  uint32
	outputCount uint32
	InputSize   int64
	OutputSize  int64
}

// AddP2PKHInput updates the size estimate to account for an additional input
// spending a P2PKH output.
func (twe *TxSizeEstimator) AddP2PKHInput() *TxSizeEstimator {
	twe.InputSize += RedeemP2PKHInputSize
	twe.inputCount++

	return twe
}

// AddCustomInput updates the size estimate to account for an additional input,
// such that the caller is responsible for specifying the full estimated size of
// the sigScript.
func (twe *TxSizeEstimator) AddCustomInput(sigScriptSize int64) *TxSizeEstimator {
	scriptLenSerSize := int64(wire.VarIntSerializeSize(uint64(sigScriptSize)))
	twe.InputSize += inputPrefixSize + inputWitnessBaseSize +
		scriptLenSerSize + sigScriptSize
	twe.inputCount++

	return twe
}

// AddP2PKHOutput updates the size estimate to account for an additional P2PKH
// output.
func (twe *TxSizeEstimator) AddP2PKHOutput() *TxSizeEstimator {
	twe.OutputSize += P2PKHOutputSize
	twe.outputCount++

	return twe
}

// AddP2SHOutput updates the size estimate to account for an additional P2SH
// output.
func (twe *TxSizeEstimator) AddP2SHOutput() *TxSizeEstimator {
	twe.OutputSize += P2SHOutputSize
	twe.outputCount++

	return twe
}

// AddOutput estimates the size of an output paying to a pkScript of the given
// length.
func (twe *TxSizeEstimator) AddOutput(pkScriptSize int64) *TxSizeEstimator {
	scriptLenSerSize := int64(wire.VarIntSerializeSize(uint64(pkScriptSize)))
	twe.OutputSize += outputBaseSize + scriptLenSerSize + pkScriptSize
	twe.outputCount++

	return twe
}

// Size returns the current size estimate of the transaction.
func (twe *TxSizeEstimator) Size() int64 {
	return baseTxSize +
		int64(wire.VarIntSerializeSize(uint64(twe.inputCount))) + // prefix len([]TxIn) varint
		twe.InputSize + // prefix []TxIn + witness []TxIn
		int64(wire.VarIntSerializeSize(uint64(twe.outputCount))) + // prefix len([]TxOut) varint
		twe.OutputSize + // []TxOut prefix
		int64(wire.VarIntSerializeSize(uint64(twe.inputCount))) // witness len([]TxIn) varint
}
