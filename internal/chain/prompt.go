package chain

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/erazemk/kovnica/internal/mint"
	"github.com/erazemk/kovnica/internal/model"
)

// Prompt wraps a wallet and asks the operator at a terminal before every
// transaction. It also confirms price increases for the orchestrator.
type Prompt struct {
	Wallet mint.Wallet
	In     *bufio.Reader
	Out    io.Writer
}

// NewPrompt reads answers from in and writes questions to out.
func NewPrompt(w mint.Wallet, in io.Reader, out io.Writer) *Prompt {
	return &Prompt{Wallet: w, In: bufio.NewReader(in), Out: out}
}

func (p *Prompt) ask(question string) bool {
	fmt.Fprintf(p.Out, "%s [y/N] ", question)
	line, _ := p.In.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (p *Prompt) Address() string { return p.Wallet.Address() }

// Send shows the call and forwards it only if the operator confirms.
func (p *Prompt) Send(ctx context.Context, call mint.Call) (string, error) {
	selector := ""
	if len(call.Data) >= 4 {
		selector = fmt.Sprintf("0x%x", call.Data[:4])
	}
	if !p.ask(fmt.Sprintf("Send transaction to %s (call %s, value %s)?", call.To, selector, call.Value)) {
		return "", mint.ErrUserRejected
	}
	return p.Wallet.Send(ctx, call)
}

func (p *Prompt) Wait(ctx context.Context, txHash string) error {
	fmt.Fprintf(p.Out, "Waiting for %s...\n", txHash)
	return p.Wallet.Wait(ctx, txHash)
}

// ConfirmPrice asks whether to pay the contract's higher price.
func (p *Prompt) ConfirmPrice(_ context.Context, q *model.Quote) (bool, error) {
	return p.ask(fmt.Sprintf("The contract charges %s %s per unit, more than the listed %s. Continue?",
		q.Sale.ChargePrice, q.Sale.EffectiveCurrency, q.Sale.EffectivePrice)), nil
}
