package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/erazemk/kovnica/internal/mint"
)

type fakeTxBackend struct {
	estimateErr error
	sendErr     error
	sent        []*types.Transaction
	receipts    []*types.Receipt
	receiptErr  error
	polls       int
}

func (f *fakeTxBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 9, nil
}

func (f *fakeTxBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1000000000), nil
}

func (f *fakeTxBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 100000, nil
}

func (f *fakeTxBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return f.sendErr
}

// TransactionReceipt returns NotFound until the queued receipts run out of
// nil entries.
func (f *fakeTxBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.polls++
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if len(f.receipts) == 0 {
		return nil, ethereum.NotFound
	}
	r := f.receipts[0]
	f.receipts = f.receipts[1:]
	if r == nil {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func newTestWallet(t *testing.T, b *fakeTxBackend) *KeyWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return &KeyWallet{Backend: b, Key: key, ChainID: big.NewInt(137), PollInterval: time.Millisecond}
}

func TestKeyWalletSendSigns(t *testing.T) {
	b := &fakeTxBackend{}
	w := newTestWallet(t, b)

	hash, err := w.Send(context.Background(), mint.Call{To: dropAddr.Hex(), Data: []byte{1, 2, 3, 4}, Value: big.NewInt(5)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(b.sent) != 1 {
		t.Fatalf("expected one tx, got %d", len(b.sent))
	}
	tx := b.sent[0]
	if tx.Hash().Hex() != hash || tx.Nonce() != 9 || tx.Gas() != 120000 || tx.Value().Int64() != 5 {
		t.Errorf("unexpected tx %s nonce=%d gas=%d value=%s", hash, tx.Nonce(), tx.Gas(), tx.Value())
	}
	if !bytes.Equal(tx.Data(), []byte{1, 2, 3, 4}) || *tx.To() != dropAddr {
		t.Errorf("unexpected tx payload")
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(137)), tx)
	if err != nil || from.Hex() != w.Address() {
		t.Errorf("expected sender %s, got %s (%v)", w.Address(), from.Hex(), err)
	}
}

func TestKeyWalletSendRevert(t *testing.T) {
	b := &fakeTxBackend{estimateErr: errors.New("execution reverted: !Qty")}
	w := newTestWallet(t, b)

	_, err := w.Send(context.Background(), mint.Call{To: dropAddr.Hex()})
	if !errors.Is(err, mint.ErrReverted) {
		t.Errorf("expected ErrReverted, got %v", err)
	}
	if len(b.sent) != 0 {
		t.Error("expected nothing broadcast")
	}
}

func TestKeyWalletSendKeepsHashOnBroadcastError(t *testing.T) {
	b := &fakeTxBackend{sendErr: errors.New("i/o timeout")}
	w := newTestWallet(t, b)

	hash, err := w.Send(context.Background(), mint.Call{To: dropAddr.Hex(), Data: []byte{1}})
	if err == nil || errors.Is(err, mint.ErrReverted) {
		t.Fatalf("expected a non-revert error, got %v", err)
	}
	if len(b.sent) != 1 || hash != b.sent[0].Hash().Hex() {
		t.Errorf("expected hash of the signed tx, got %q", hash)
	}
}

func TestKeyWalletWaitReceiptError(t *testing.T) {
	b := &fakeTxBackend{receiptErr: errors.New("connection reset")}
	w := newTestWallet(t, b)
	err := w.Wait(context.Background(), "0x01")
	if err == nil || errors.Is(err, mint.ErrReverted) {
		t.Errorf("expected a non-revert error, got %v", err)
	}
}

func TestKeyWalletWait(t *testing.T) {
	t.Run("mined", func(t *testing.T) {
		b := &fakeTxBackend{receipts: []*types.Receipt{nil, nil, {Status: types.ReceiptStatusSuccessful}}}
		w := newTestWallet(t, b)
		if err := w.Wait(context.Background(), "0x01"); err != nil {
			t.Errorf("Wait: %v", err)
		}
		if b.polls != 3 {
			t.Errorf("expected 3 polls, got %d", b.polls)
		}
	})

	t.Run("reverted", func(t *testing.T) {
		b := &fakeTxBackend{receipts: []*types.Receipt{{Status: types.ReceiptStatusFailed}}}
		w := newTestWallet(t, b)
		if err := w.Wait(context.Background(), "0x01"); !errors.Is(err, mint.ErrReverted) {
			t.Errorf("expected ErrReverted, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		w := newTestWallet(t, &fakeTxBackend{})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		if err := w.Wait(ctx, "0x01"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestNewKeyWallet(t *testing.T) {
	key, _ := crypto.GenerateKey()
	hexKey := "0x" + common.Bytes2Hex(crypto.FromECDSA(key))

	w, err := NewKeyWallet(&fakeTxBackend{}, hexKey, big.NewInt(1))
	if err != nil {
		t.Fatalf("NewKeyWallet: %v", err)
	}
	if w.Address() != crypto.PubkeyToAddress(key.PublicKey).Hex() {
		t.Errorf("unexpected address %s", w.Address())
	}

	if _, err := NewKeyWallet(&fakeTxBackend{}, "not-a-key", big.NewInt(1)); err == nil {
		t.Error("expected error for invalid key")
	}
}

type recordingWallet struct {
	sent int
}

func (w *recordingWallet) Address() string { return buyerAddr.Hex() }

func (w *recordingWallet) Send(context.Context, mint.Call) (string, error) {
	w.sent++
	return "0xabc", nil
}

func (w *recordingWallet) Wait(context.Context, string) error { return nil }

func TestPrompt(t *testing.T) {
	inner := &recordingWallet{}
	var out strings.Builder
	p := NewPrompt(inner, strings.NewReader("n\nyes\n"), &out)
	call := mint.Call{To: dropAddr.Hex(), Data: []byte{0xaa, 0xbb, 0xcc, 0xdd, 0x01}, Value: big.NewInt(0)}

	if _, err := p.Send(context.Background(), call); !errors.Is(err, mint.ErrUserRejected) {
		t.Errorf("expected ErrUserRejected, got %v", err)
	}
	if inner.sent != 0 {
		t.Error("expected rejected call not forwarded")
	}
	if hash, err := p.Send(context.Background(), call); err != nil || hash != "0xabc" {
		t.Errorf("expected forwarded send, got %q %v", hash, err)
	}
	if !strings.Contains(out.String(), "0xaabbccdd") {
		t.Errorf("expected selector in prompt, got %q", out.String())
	}
	if _, err := p.Send(context.Background(), call); !errors.Is(err, mint.ErrUserRejected) {
		t.Errorf("expected EOF to reject, got %v", err)
	}
}
