package txsize_test

import (
	"testing"

	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/dcrd/wire"
	"github.com/decred/dcrspendfrom/txsize"
	"github.com/stretchr/testify/require"
)

// TestTxSizeEstimator tests that transaction size estimates are calculated
// correctly by comparing against an actual (though invalid) transaction
// matching the template.
func TestTxSizeEstimator(t *testing.T) {
	netParams := chaincfg.MainNetParams()

	// Static test data.
	var nullData [73]byte

	p2pkhAddr, err := stdaddr.NewAddressPubKeyHashEcdsaSecp256k1V0(
		nullData[:20], netParams)
	require.NoError(t, err)
	_, p2pkhPkScript := p2pkhAddr.PaymentScript()

	signature := nullData[:73]
	compressedPubKey := nullData[:33]
	p2pkhSigScript, err := txscript.NewScriptBuilder().AddData(signature).
		AddData(compressedPubKey).Script()
	require.NoError(t, err)

	p2shAddr, err := stdaddr.NewAddressScriptHashV0FromHash(nullData[:20], netParams)
	require.NoError(t, err)
	_, p2shPkScript := p2shAddr.PaymentScript()

	p2shRedeemScript := nullData[:71] // 2-of-2 multisig
	p2shSigScript, err := txscript.NewScriptBuilder().AddData(signature).
		AddData(signature).AddData(p2shRedeemScript).Script()
	require.NoError(t, err)

	require.Len(t, p2pkhPkScript, txsize.P2PKHPkScriptSize)
	require.Len(t, p2shPkScript, txsize.P2SHPkScriptSize)
	require.Len(t, p2pkhSigScript, txsize.RedeemP2PKHSigScriptSize)

	testCases := []struct {
		name            string
		numP2PKHInputs  int
		numP2SHInputs   int
		numP2PKHOutputs int
		numP2SHOutputs  int
	}{
		{
			name:            "p2pkh with change",
			numP2PKHInputs:  1,
			numP2PKHOutputs: 2,
		},
		{
			name:           "p2pkh to p2sh",
			numP2PKHInputs: 1,
			numP2SHOutputs: 1,
		},
		{
			name:            "p2sh to p2pkh",
			numP2SHInputs:   1,
			numP2PKHOutputs: 1,
		},
		{
			name:            "many p2pkh inputs",
			numP2PKHInputs:  253,
			numP2PKHOutputs: 1,
			numP2SHOutputs:  1,
		},
		{
			name:            "many p2pkh outputs",
			numP2SHInputs:   1,
			numP2PKHOutputs: 253,
			numP2SHOutputs:  1,
		},
		{
			name:            "many p2sh outputs",
			numP2PKHInputs:  1,
			numP2PKHOutputs: 1,
			numP2SHOutputs:  253,
		},
	}

	for _, test := range testCases {
		test := test
		t.Run(test.name, func(t *testing.T) {
			var sizeEstimate txsize.TxSizeEstimator
			tx := wire.NewMsgTx()

			for j := 0; j < test.numP2PKHInputs; j++ {
				sizeEstimate.AddP2PKHInput()
				tx.AddTxIn(&wire.TxIn{SignatureScript: p2pkhSigScript})
			}
			for j := 0; j < test.numP2SHInputs; j++ {
				sizeEstimate.AddCustomInput(int64(len(p2shSigScript)))
				tx.AddTxIn(&wire.TxIn{SignatureScript: p2shSigScript})
			}

			for j := 0; j < test.numP2PKHOutputs; j++ {
				sizeEstimate.AddP2PKHOutput()
				tx.AddTxOut(&wire.TxOut{PkScript: p2pkhPkScript})
			}
			for j := 0; j < test.numP2SHOutputs; j++ {
				sizeEstimate.AddOutput(int64(len(p2shPkScript)))
				tx.AddTxOut(&wire.TxOut{PkScript: p2shPkScript})
			}

			require.Equal(t, int64(tx.SerializeSize()), sizeEstimate.Size())
		})
	}
}

// TestTxSizeKnownValues pins the sizes of the common spend shapes.
func TestTxSizeKnownValues(t *testing.T) {
	t.Parallel()

	size := (&txsize.TxSizeEstimator{}).AddP2PKHInput().AddP2SHOutput().Size()
	require.EqualValues(t, 215, size)

	size = (&txsize.TxSizeEstimator{}).AddP2PKHInput().AddP2SHOutput().
		AddP2PKHOutput().Size()
	require.EqualValues(t, 251, size)
}

// TestRedeemP2SHSigScriptSize compares the P2SH signature script estimate with
// scripts built with canonical pushes.
func TestRedeemP2SHSigScriptSize(t *testing.T) {
	t.Parallel()

	var nullData [300]byte
	signature := nullData[:73]

	testCases := []struct {
		name       string
		numSigs    int
		redeemSize int
	}{
		{"2-of-2 small push", 2, 71},
		{"2-of-3 pushdata1", 2, 105},
		{"single sig pushdata2", 1, 300},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b := txscript.NewScriptBuilder()
			for i := 0; i < tc.numSigs; i++ {
				b.AddData(signature)
			}
			sigScript, err := b.AddData(nullData[:tc.redeemSize]).Script()
			require.NoError(t, err)

			require.EqualValues(t, len(sigScript),
				txsize.RedeemP2SHSigScriptSize(tc.numSigs,
					tc.redeemSize))
		})
	}
}
