package submit

import (
	"context"
	"errors"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"InkaSwap-Provider/internal/contract"
	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/wallet"
	"InkaSwap-Provider/internal/web3"
	"InkaSwap-Provider/internal/web3/simtest"
)

const testMnemonic = "test test test test test test test test test test test junk"

var (
	tokenA = common.HexToAddress("0xae13d989daC2f0dEbFf460aC112a837C89BAa7cd")
	tokenB = common.HexToAddress("0x16227D60f7a0e586C66B005219dfc887D13C9531")
)

type trackerSpy struct {
	mu     sync.Mutex
	hashes []common.Hash
}

func (s *trackerSpy) Track(_ context.Context, _ string, hash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes = append(s.hashes, hash)
	return nil
}

type recorderSpy struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recorderSpy) ObserveSubmission(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recorderSpy) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return ""
	}
	return r.outcomes[len(r.outcomes)-1]
}

// manualMining hides Commit so submitted transactions stay pending.
type manualMining struct {
	web3.Backend
}

// laggingReceipts answers the first lag receipt lookups with err and then
// defers to the simulated chain. Commit stays promoted so Submit still mines.
type laggingReceipts struct {
	*backends.SimulatedBackend
	err error
	lag int

	mu    sync.Mutex
	polls int
}

func (l *laggingReceipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	l.polls++
	lagging := l.lag < 0 || l.polls <= l.lag
	l.mu.Unlock()
	if lagging {
		return nil, l.err
	}
	return l.SimulatedBackend.TransactionReceipt(ctx, hash)
}

func (l *laggingReceipts) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.polls
}

// countingBackend fails the test through a nil dereference on any method
// it does not count, and counts the ones a transactor would use first.
type countingBackend struct {
	web3.Backend
	calls int
}

func (c *countingBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.calls++
	return 0, nil
}

func (c *countingBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	c.calls++
	return big.NewInt(1), nil
}

func (c *countingBackend) EstimateGas(context.Context, gethcore.CallMsg) (uint64, error) {
	c.calls++
	return 21_000, nil
}

func (c *countingBackend) ChainID(context.Context) (*big.Int, error) {
	c.calls++
	return big.NewInt(simtest.ChainID), nil
}

func (c *countingBackend) SendTransaction(context.Context, *types.Transaction) error {
	c.calls++
	return nil
}

type fixture struct {
	chain    *simtest.Chain
	wallet   *wallet.Wallet
	recorder *recorderSpy
	tracker  *trackerSpy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w, err := wallet.Derive(testMnemonic)
	if err != nil {
		t.Fatalf("derive wallet: %v", err)
	}
	return &fixture{
		chain:    simtest.New(t, w.Address()),
		wallet:   w,
		recorder: &recorderSpy{},
		tracker:  &trackerSpy{},
	}
}

func (f *fixture) transactor(backend web3.Backend, opts ...Option) *Transactor {
	opts = append([]Option{
		WithNetwork("simulated"),
		WithPollInterval(10 * time.Millisecond),
		WithRecorder(f.recorder),
		WithTracker(f.tracker),
	}, opts...)
	return NewTransactor(New(backend, opts...), f.wallet, WithChainID(f.chain.ChainID))
}

func (f *fixture) swap(t *testing.T, target common.Address) *contract.PendingCall {
	t.Helper()
	provider, err := contract.BindInkaProvider(target.Hex())
	if err != nil {
		t.Fatalf("bind provider: %v", err)
	}
	pc, err := provider.Swap(big.NewInt(0), []common.Address{tokenA, tokenB}, f.wallet.Address(), time.Now().Unix()+1200)
	if err != nil {
		t.Fatalf("encode swap: %v", err)
	}
	return pc
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSwapAgainstAcceptingContract(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testContext(t)
	target := f.chain.Deploy(t, simtest.AcceptAllRuntime)

	receipt, err := f.swap(t, target).Send(ctx, f.transactor(f.chain.Backend), web3.TxParams{Value: simtest.Ether})
	if err != nil {
		t.Fatalf("send swap: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatalf("unexpected status %d", receipt.Status)
	}

	balance, err := f.chain.Backend.BalanceAt(ctx, target, nil)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(simtest.Ether) != 0 {
		t.Fatalf("contract received %s wei", balance)
	}
	if got := f.recorder.last(); got != OutcomeConfirmed {
		t.Fatalf("unexpected outcome %q", got)
	}
}

func TestSwapAgainstRevertingContract(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testContext(t)
	target := f.chain.Deploy(t, simtest.RevertRuntime("InkaSwap: EXPIRED"))

	_, err := f.swap(t, target).Send(ctx, f.transactor(f.chain.Backend), web3.TxParams{Value: simtest.Ether})
	if !errors.Is(err, xerrors.ErrReverted) {
		t.Fatalf("expected REVERTED, got %v", err)
	}
	if got := xerrors.RevertReason(err); got != "InkaSwap: EXPIRED" {
		t.Fatalf("unexpected reason %q", got)
	}
}

func TestFailedReceiptReplaysRevertReason(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testContext(t)
	target := f.chain.Deploy(t, simtest.RevertRuntime("InkaSwap: K"))

	receipt, err := f.swap(t, target).Send(ctx, f.transactor(f.chain.Backend), web3.TxParams{
		Value: simtest.Ether,
		Gas:   200_000,
	})
	if !errors.Is(err, xerrors.ErrReverted) {
		t.Fatalf("expected REVERTED, got %v", err)
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusFailed {
		t.Fatalf("expected the failed receipt to be returned, got %+v", receipt)
	}
	if xerrors.TxHash(err) != receipt.TxHash.Hex() {
		t.Fatalf("error must carry the transaction hash")
	}
	if got := xerrors.RevertReason(err); got != "InkaSwap: K" {
		t.Fatalf("unexpected replayed reason %q", got)
	}
	if got := f.recorder.last(); got != OutcomeReverted {
		t.Fatalf("unexpected outcome %q", got)
	}
}

func TestTimeoutCarriesHashAndTracks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testContext(t)
	target := f.chain.Deploy(t, simtest.AcceptAllRuntime)

	_, err := f.swap(t, target).Send(ctx, f.transactor(manualMining{f.chain.Backend}), web3.TxParams{
		Value:   simtest.Ether,
		Timeout: 150 * time.Millisecond,
	})
	if !errors.Is(err, xerrors.ErrTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	hash := xerrors.TxHash(err)
	if hash == "" {
		t.Fatalf("timeout must carry the transaction hash")
	}
	if len(f.tracker.hashes) != 1 || f.tracker.hashes[0].Hex() != hash {
		t.Fatalf("tracker did not receive %s: %v", hash, f.tracker.hashes)
	}
	if !xerrors.RetryableError(err) {
		t.Fatalf("timeouts are retryable by re-querying")
	}

	f.chain.Backend.Commit()
	receipt, err := f.chain.Backend.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil || receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatalf("timed out transaction should still confirm later: %v", err)
	}
}

func TestIndexingReceiptKeepsPolling(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testContext(t)
	target := f.chain.Deploy(t, simtest.AcceptAllRuntime)
	backend := &laggingReceipts{
		SimulatedBackend: f.chain.Backend,
		err:              errors.New("transaction indexing is in progress"),
		lag:              2,
	}

	receipt, err := f.swap(t, target).Send(ctx, f.transactor(backend), web3.TxParams{Value: simtest.Ether})
	if err != nil {
		t.Fatalf("send swap: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatalf("unexpected status %d", receipt.Status)
	}
	if polls := backend.count(); polls < 3 {
		t.Fatalf("expected at least 3 receipt lookups, got %d", polls)
	}
	if len(f.tracker.hashes) != 0 {
		t.Fatalf("confirmed transaction must not be tracked")
	}
}

func TestTransportErrorWhileWaitingTimesOut(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testContext(t)
	target := f.chain.Deploy(t, simtest.AcceptAllRuntime)
	backend := &laggingReceipts{
		SimulatedBackend: f.chain.Backend,
		err:              &net.OpError{Op: "write", Net: "pipe", Err: os.ErrDeadlineExceeded},
		lag:              -1,
	}

	_, err := f.swap(t, target).Send(ctx, f.transactor(backend), web3.TxParams{
		Value:   simtest.Ether,
		Timeout: 100 * time.Millisecond,
	})
	if !errors.Is(err, xerrors.ErrTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	hash := xerrors.TxHash(err)
	if len(f.tracker.hashes) != 1 || f.tracker.hashes[0].Hex() != hash {
		t.Fatalf("tracker did not receive %s: %v", hash, f.tracker.hashes)
	}
	if got := f.recorder.last(); got != OutcomeTimeout {
		t.Fatalf("unexpected outcome %q", got)
	}
	if backend.count() < 2 {
		t.Fatalf("transport errors must not end the wait, polled %d times", backend.count())
	}
}

func TestExpiredDeadlineNeverTouchesBackend(t *testing.T) {
	t.Parallel()

	w, err := wallet.Derive(testMnemonic)
	if err != nil {
		t.Fatalf("derive wallet: %v", err)
	}
	backend := &countingBackend{}
	tr := NewTransactor(New(backend), w)

	provider, err := contract.BindInkaProvider(tokenA.Hex())
	if err != nil {
		t.Fatalf("bind provider: %v", err)
	}
	pc, err := provider.Swap(big.NewInt(0), []common.Address{tokenA, tokenB}, w.Address(), time.Now().Unix()-1)
	if err != nil {
		t.Fatalf("encode swap: %v", err)
	}

	if _, err := pc.Send(context.Background(), tr, web3.TxParams{Value: big.NewInt(1)}); !errors.Is(err, xerrors.ErrConstraintViolation) {
		t.Fatalf("expected CONSTRAINT_VIOLATION, got %v", err)
	}
	foreign := web3.TransactionRequest{From: tokenB, To: &tokenA}
	if _, err := tr.Send(context.Background(), foreign, 0); !errors.Is(err, xerrors.ErrConstraintViolation) {
		t.Fatalf("expected CONSTRAINT_VIOLATION for foreign sender, got %v", err)
	}
	if backend.calls != 0 {
		t.Fatalf("backend was called %d times", backend.calls)
	}
}

func TestRejectedTransactionIsSubmissionError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testContext(t)
	target := f.chain.Deploy(t, simtest.AcceptAllRuntime)
	tr := f.transactor(f.chain.Backend)

	tx, err := tr.Prepare(ctx, web3.TransactionRequest{To: &target, Value: big.NewInt(1)})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := tr.submitter.Submit(ctx, tx, WaitOptions{}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err = tr.submitter.Submit(ctx, tx, WaitOptions{})
	if !errors.Is(err, xerrors.ErrSubmission) {
		t.Fatalf("expected SUBMISSION for replayed nonce, got %v", err)
	}
	if xerrors.TxHash(err) != tx.Hash().Hex() {
		t.Fatalf("rejection must carry the transaction hash")
	}
	if got := f.recorder.last(); got != OutcomeRejected {
		t.Fatalf("unexpected outcome %q", got)
	}
}

func TestUnreachableEndpointIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := ethclient.Dial(url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(client.Close)

	w, err := wallet.Derive(testMnemonic)
	if err != nil {
		t.Fatalf("derive wallet: %v", err)
	}
	nonce := uint64(0)
	tx, err := w.Sign(web3.TransactionRequest{To: &tokenA, Gas: 21_000, GasPrice: big.NewInt(1), Nonce: &nonce}, big.NewInt(97))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	recorder := &recorderSpy{}
	_, err = New(client, WithRecorder(recorder)).Submit(testContext(t), tx, WaitOptions{})
	if !errors.Is(err, xerrors.ErrNetwork) {
		t.Fatalf("expected NETWORK, got %v", err)
	}
	if recorder.last() != OutcomeNetwork {
		t.Fatalf("unexpected outcome %q", recorder.last())
	}

	if _, err := NewTransactor(New(client), w).Send(testContext(t), web3.TransactionRequest{To: &tokenA}, 0); !errors.Is(err, xerrors.ErrNetwork) {
		t.Fatalf("expected NETWORK while filling the nonce, got %v", err)
	}
}
