package chainfee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrutil/v4"
)

const (
	// maxBlockTarget is the highest number of blocks confirmations that
	// a WebAPIEstimator will cache fees for.
	maxBlockTarget uint32 = 1008

	// minBlockTarget is the lowest number of blocks confirmations that
	// a WebAPIEstimator will cache fees for. Requesting an estimate for
	// less than this will result in an error.
	minBlockTarget uint32 = 1
)

var (
	// errNoFeeRateFound is used when a given conf target cannot be found
	// from the fee estimator.
	errNoFeeRateFound = errors.New("no fee estimation for block target")

	// errEmptyCache is used when the fee rate cache is empty.
	errEmptyCache = errors.New("fee rate cache is empty")
)

// Estimator provides the ability to estimate on-chain transaction fees for
// various combinations of transaction sizes and desired confirmation time
// (measured by number of blocks).
type Estimator interface {
	// EstimateFeePerKB takes in a target for the number of blocks until
	// an initial confirmation and returns the estimated fee expressed in
	// atoms/kB.
	EstimateFeePerKB(numBlocks uint32) (AtomPerKByte, error)

	// Start signals the Estimator to start any processes it needs to
	// perform its duty.
	Start() error

	// Stop cleans up the resources used by the fee estimator.
	Stop() error

	// RelayFeePerKB returns the minimum fee rate required for transactions
	// to be relayed.
	RelayFeePerKB() AtomPerKByte
}

// StaticEstimator will return a static value for all fee calculation requests.
type StaticEstimator struct {
	// feePerKB is the static fee rate in atoms-per-kB that will be
	// returned by this fee estimator.
	feePerKB AtomPerKByte

	// relayFee is the minimum fee rate required for transactions to be
	// relayed.
	relayFee AtomPerKByte
}

// NewStaticEstimator returns a new static fee estimator instance.
func NewStaticEstimator(feePerKB,
	relayFee AtomPerKByte) *StaticEstimator {

	return &StaticEstimator{
		feePerKB: feePerKB,
		relayFee: relayFee,
	}
}

// EstimateFeePerKB will return the static value for fee calculations.
//
// NOTE: This method is part of the Estimator interface.
func (e StaticEstimator) EstimateFeePerKB(numBlocks uint32) (AtomPerKByte, error) {
	return e.feePerKB, nil
}

// RelayFeePerKB returns the minimum fee rate required for transactions to be
// relayed.
//
// NOTE: This method is part of the Estimator interface.
func (e StaticEstimator) RelayFeePerKB() AtomPerKByte {
	return e.relayFee
}

// Start is a no-op for the static estimator.
//
// NOTE: This method is part of the Estimator interface.
func (e StaticEstimator) Start() error {
	return nil
}

// Stop is a no-op for the static estimator.
//
// NOTE: This method is part of the Estimator interface.
func (e StaticEstimator) Stop() error {
	return nil
}

// A compile-time assertion to ensure that StaticEstimator implements the
// Estimator interface.
var _ Estimator = (*StaticEstimator)(nil)

// WalletFeeFetcher returns the fee rate, in DCR/kB, that a wallet is
// configured to pay. rpcwallet.Client.TxFee satisfies it.
type WalletFeeFetcher func(ctx context.Context) (float64, error)

// WalletEstimator is an implementation of the Estimator interface that uses
// the fee rate configured on the wallet that funds the transaction. The rate
// is queried once, when the estimator is started.
type WalletEstimator struct {
	ctx context.Context

	// fallbackFeePerKB is the fee rate returned if the wallet could not be
	// queried.
	fallbackFeePerKB AtomPerKByte

	fetchFee WalletFeeFetcher

	mtx      sync.Mutex
	feePerKB AtomPerKByte
}

// NewWalletEstimator creates a new WalletEstimator that queries the wallet
// fee rate with the given fetcher.
func NewWalletEstimator(ctx context.Context, fetchFee WalletFeeFetcher,
	fallBackFeeRate AtomPerKByte) *WalletEstimator {

	return &WalletEstimator{
		ctx:              ctx,
		fallbackFeePerKB: fallBackFeeRate,
		fetchFee:         fetchFee,
	}
}

// Start queries the wallet for its configured fee rate.
//
// NOTE: This method is part of the Estimator interface.
func (w *WalletEstimator) Start() error {
	feeRate, err := w.fetchWalletFee()
	if err != nil {
		log.Warnf("Unable to query wallet fee rate, using fallback "+
			"of %s: %v", w.fallbackFeePerKB, err)
		feeRate = w.fallbackFeePerKB
	}

	w.mtx.Lock()
	w.feePerKB = feeRate
	w.mtx.Unlock()

	return nil
}

func (w *WalletEstimator) fetchWalletFee() (AtomPerKByte, error) {
	dcrPerKB, err := w.fetchFee(w.ctx)
	if err != nil {
		return 0, err
	}

	atoms, err := dcrutil.NewAmount(dcrPerKB)
	if err != nil {
		return 0, err
	}

	// Enforce our fee floor.
	atomsPerKB := AtomPerKByte(atoms)
	if atomsPerKB < FeePerKBFloor {
		log.Debugf("Wallet fee rate of %s is too low, using fee "+
			"floor of %s", atomsPerKB, FeePerKBFloor)
		atomsPerKB = FeePerKBFloor
	}

	log.Debugf("Using wallet fee rate of %s", atomsPerKB)

	return atomsPerKB, nil
}

// Stop is a no-op for the wallet estimator.
//
// NOTE: This method is part of the Estimator interface.
func (w *WalletEstimator) Stop() error {
	return nil
}

// RelayFeePerKB returns the minimum fee rate required for transactions to be
// relayed.
//
// NOTE: This method is part of the Estimator interface.
func (w *WalletEstimator) RelayFeePerKB() AtomPerKByte {
	return FeePerKBFloor
}

// EstimateFeePerKB returns the wallet fee rate. The wallet does not estimate
// per confirmation target so numBlocks is ignored.
//
// NOTE: This method is part of the Estimator interface.
func (w *WalletEstimator) EstimateFeePerKB(numBlocks uint32) (AtomPerKByte, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.feePerKB == 0 {
		return w.fallbackFeePerKB, nil
	}
	return w.feePerKB, nil
}

// A compile-time assertion to ensure that WalletEstimator implements the
// Estimator interface.
var _ Estimator = (*WalletEstimator)(nil)

// WebAPIFeeSource is an interface allows the WebAPIEstimator to query an
// arbitrary HTTP-based fee estimator.
type WebAPIFeeSource interface {
	// GenQueryURL generates the full query URL. The value returned by this
	// method should be able to be used directly as a path for an HTTP GET
	// request.
	GenQueryURL() string

	// ParseResponse attempts to parse the body of the response generated
	// by the above query URL.
	ParseResponse(r io.Reader) (map[uint32]uint32, error)
}

// SparseConfFeeSource is an implementation of the WebAPIFeeSource that utilizes
// a user-specified fee estimation API. It expects the response to be in the
// JSON format: `fee_by_block_target: { ... }` where the value maps block
// targets to fee estimates (in atoms per kilobyte).
type SparseConfFeeSource struct {
	// URL is the fee estimation API specified by the user.
	URL string
}

// GenQueryURL generates the full query URL.
//
// NOTE: Part of the WebAPIFeeSource interface.
func (s SparseConfFeeSource) GenQueryURL() string {
	return s.URL
}

// ParseResponse attempts to parse the body of the response generated by the
// above query URL.
//
// NOTE: Part of the WebAPIFeeSource interface.
func (s SparseConfFeeSource) ParseResponse(r io.Reader) (map[uint32]uint32, error) {
	type jsonResp struct {
		FeeByBlockTarget map[uint32]uint32 `json:"fee_by_block_target"`
	}

	resp := jsonResp{
		FeeByBlockTarget: make(map[uint32]uint32),
	}
	jsonReader := json.NewDecoder(r)
	if err := jsonReader.Decode(&resp); err != nil {
		return nil, err
	}

	return resp.FeeByBlockTarget, nil
}

// A compile-time assertion to ensure that SparseConfFeeSource implements the
// WebAPIFeeSource interface.
var _ WebAPIFeeSource = (*SparseConfFeeSource)(nil)

// WebAPIEstimator is an implementation of the Estimator interface that
// queries an HTTP-based fee estimation from an existing web API. Fees are
// fetched once, on the first estimate request, and served from a cache
// afterwards.
type WebAPIEstimator struct {
	fetched sync.Once

	// apiSource is the backing web API source we'll use for our queries.
	apiSource WebAPIFeeSource

	// feeByBlockTarget is our cache for fees pulled from the API.
	feesMtx          sync.Mutex
	feeByBlockTarget map[uint32]uint32

	// netGetter performs a GET http request to the specified URL and
	// returns the response. It is exposed here to allow tests to mock the
	// network.
	netGetter func(url string) (*http.Response, error)
}

// defaultNetGetter performs a GET request to the specified URL or times out in
// at most 10 seconds.
func defaultNetGetter(url string) (*http.Response, error) {
	netTransport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 5 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	netClient := &http.Client{
		Timeout:   time.Second * 10,
		Transport: netTransport,
	}

	return netClient.Get(url)
}

// NewWebAPIEstimator creates a new WebAPIEstimator from a given fee source.
func NewWebAPIEstimator(api WebAPIFeeSource) *WebAPIEstimator {
	return &WebAPIEstimator{
		apiSource:        api,
		feeByBlockTarget: make(map[uint32]uint32),
		netGetter:        defaultNetGetter,
	}
}

// EstimateFeePerKB takes in a target for the number of blocks until an initial
// confirmation and returns the estimated fee expressed in atoms/kB.
//
// NOTE: This method is part of the Estimator interface.
func (w *WebAPIEstimator) EstimateFeePerKB(numBlocks uint32) (
	AtomPerKByte, error) {

	if numBlocks > maxBlockTarget {
		numBlocks = maxBlockTarget
	} else if numBlocks < minBlockTarget {
		return 0, fmt.Errorf("conf target of %v is too low, minimum "+
			"accepted is %v", numBlocks, minBlockTarget)
	}

	w.fetched.Do(w.updateFeeEstimates)

	feePerKb, err := w.getCachedFee(numBlocks)

	// If the estimator returns an error, a zero value fee rate will be
	// returned and clamped to the floor below.
	if err != nil {
		log.Errorf("unable to query estimator: %v", err)
	}
	atomsPerKB := AtomPerKByte(feePerKb)

	// If the result is too low, then we'll clamp it to our current fee
	// floor.
	if atomsPerKB < FeePerKBFloor {
		atomsPerKB = FeePerKBFloor
	}

	log.Debugf("Web API returning %v atoms/kB for conf target of %v",
		int64(atomsPerKB), numBlocks)

	return atomsPerKB, nil
}

// Start is a no-op. The API is queried lazily by EstimateFeePerKB.
//
// NOTE: This method is part of the Estimator interface.
func (w *WebAPIEstimator) Start() error {
	return nil
}

// Stop is a no-op for the web API estimator.
//
// NOTE: This method is part of the Estimator interface.
func (w *WebAPIEstimator) Stop() error {
	return nil
}

// RelayFeePerKB returns the minimum fee rate required for transactions to be
// relayed.
//
// NOTE: This method is part of the Estimator interface.
func (w *WebAPIEstimator) RelayFeePerKB() AtomPerKByte {
	return FeePerKBFloor
}

// getCachedFee takes a conf target and returns the cached fee rate. When the
// fee rate cannot be found, it will search the cache by decrementing the conf
// target until a fee rate is found. If still not found, it will return the fee
// rate of the minimum conf target cached, in other words, the most expensive
// fee rate it knows of.
func (w *WebAPIEstimator) getCachedFee(numBlocks uint32) (uint32, error) {
	w.feesMtx.Lock()
	defer w.feesMtx.Unlock()

	if len(w.feeByBlockTarget) == 0 {
		return 0, fmt.Errorf("web API error: %w", errEmptyCache)
	}

	fee, ok := w.feeByBlockTarget[numBlocks]
	if ok {
		return fee, nil
	}

	// Search the cache using a lower conf target first. The fee rate
	// returned will be larger than what's requested.
	for target := numBlocks; target >= minBlockTarget; target-- {
		fee, ok := w.feeByBlockTarget[target]
		if !ok {
			continue
		}

		log.Warnf("Web API does not have a fee rate for target=%d, "+
			"using the fee rate for target=%d instead",
			numBlocks, target)

		return fee, nil
	}

	// We can only get here iff the requested conf target is smaller than
	// the minimum conf target cached.
	minTargetCached := uint32(math.MaxUint32)
	for target := range w.feeByBlockTarget {
		if target < minTargetCached {
			minTargetCached = target
		}
	}

	fee, ok = w.feeByBlockTarget[minTargetCached]
	if !ok {
		return 0, fmt.Errorf("web API error: %w, conf target: %d",
			errNoFeeRateFound, numBlocks)
	}

	log.Errorf("Web API does not have a fee rate for target=%d, "+
		"using the fee rate for target=%d instead",
		numBlocks, minTargetCached)

	return fee, nil
}

// updateFeeEstimates re-queries the API for fresh fees and caches them.
func (w *WebAPIEstimator) updateFeeEstimates() {
	targetURL := w.apiSource.GenQueryURL()
	resp, err := w.netGetter(targetURL)
	if err != nil {
		log.Errorf("unable to query web api for fee response: %v",
			err)
		return
	}
	defer resp.Body.Close()

	feesByBlockTarget, err := w.apiSource.ParseResponse(resp.Body)
	if err != nil {
		log.Errorf("unable to query web api for fee response: %v",
			err)
		return
	}

	w.feesMtx.Lock()
	w.feeByBlockTarget = feesByBlockTarget
	w.feesMtx.Unlock()
}

// A compile-time assertion to ensure that WebAPIEstimator implements the
// Estimator interface.
var _ Estimator = (*WebAPIEstimator)(nil)
