package app

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	clierr "github.com/payflowhq/payflow/internal/errors"
	"github.com/payflowhq/payflow/internal/execution"
	"github.com/payflowhq/payflow/internal/model"
	"github.com/payflowhq/payflow/internal/registry"
	"github.com/payflowhq/payflow/internal/store"
	"github.com/payflowhq/payflow/internal/wallet"
	"github.com/payflowhq/payflow/internal/wallet/signer"
)

// sendResult is the terminal payload for a payment run.
type sendResult struct {
	PaymentID string                  `json:"payment_id"`
	State     execution.RunState      `json:"state"`
	TxHash    string                  `json:"tx_hash,omitempty"`
	TxLink    string                  `json:"tx_link,omitempty"`
	RouteID   string                  `json:"route_id,omitempty"`
	Steps     []model.TransactionStep `json:"steps"`
}

func (s *runtimeState) newSendCommand() *cobra.Command {
	var flags intentFlags
	var yes bool
	var keySource string
	var rpcOverride string
	var invoiceID string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Quote and execute a payment end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.executePayment(cmd, flags, yes, keySource, rpcOverride, invoiceID)
		},
	}
	flags.define(cmd)
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	cmd.Flags().StringVar(&keySource, "key-source", "", "Signing key source (env, file, keystore)")
	cmd.Flags().StringVar(&rpcOverride, "rpc-url", "", "RPC endpoint override for the source chain")
	cmd.Flags().StringVar(&invoiceID, "invoice", "", "Invoice id this payment settles")
	_ = cmd.MarkFlagRequired("from-chain")
	_ = cmd.MarkFlagRequired("to-chain")
	_ = cmd.MarkFlagRequired("from-token")
	_ = cmd.MarkFlagRequired("to-token")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// executePayment runs the full quote-confirm-execute pipeline shared by send
// and invoices pay.
func (s *runtimeState) executePayment(cmd *cobra.Command, flags intentFlags, yes bool, keySource, rpcOverride, invoiceID string) error {
	commandPath := trimRootPath(cmd.CommandPath())
	s.resetCommandDiagnostics()

	txSigner, err := signer.NewLocalSignerFromEnv(keySource)
	if err != nil {
		return clierr.Wrap(clierr.CodeSigner, "load signing key", err)
	}
	if strings.TrimSpace(flags.wallet) == "" {
		flags.wallet = txSigner.Address().Hex()
	}
	if !strings.EqualFold(flags.wallet, txSigner.Address().Hex()) {
		return clierr.New(clierr.CodeSigner, "wallet flag does not match the signing key address")
	}

	buildCtx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
	intent, toToken, ensName, err := s.buildIntent(buildCtx, flags)
	cancel()
	if err != nil {
		return err
	}
	if err := s.engine.ValidateIntent(intent); err != nil {
		return err
	}

	quoteCtx, cancelQuote := context.WithTimeout(context.Background(), s.settings.Timeout)
	option, err := s.engine.Quote(quoteCtx, intent)
	cancelQuote()
	if err != nil {
		return err
	}

	if !yes {
		if s.settings.OutputMode != "plain" {
			return clierr.New(clierr.CodeUsage, "send requires confirmation; re-run with --yes or --plain for an interactive prompt")
		}
		if !s.confirmSend(cmd, intent, option, toToken.Symbol) {
			return clierr.New(clierr.CodeUsage, "payment cancelled")
		}
	}

	endpoints := registry.DefaultRPCEndpoints()
	if strings.TrimSpace(rpcOverride) != "" {
		endpoints[intent.SourceChainID] = strings.TrimSpace(rpcOverride)
	}
	provider, err := wallet.NewLocalWallet(txSigner, intent.SourceChainID, endpoints)
	if err != nil {
		return clierr.Wrap(clierr.CodeWallet, "initialize wallet", err)
	}
	defer provider.Close()

	engine := execution.NewEngine(provider, s.lifi, execution.Options{
		PollInterval:   s.settings.PollInterval,
		ConfirmTimeout: s.settings.ConfirmTimeout,
	})

	// The run outlives the per-request timeout; it is bounded by the
	// engine's own confirmation deadline.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	events, err := engine.Execute(runCtx, intent, option)
	if err != nil {
		return err
	}

	final := s.streamProgress(events)

	paymentID := store.NewPaymentID()
	record := model.PaymentRecord{
		ID:          paymentID,
		InvoiceID:   invoiceID,
		TxHash:      final.TxHash,
		FromChainID: intent.SourceChainID,
		ToChainID:   intent.DestinationChainID,
		FromToken:   intent.SourceTokenAddress,
		ToToken:     intent.DestinationToken,
		Amount:      intent.AmountBaseUnits,
		Status:      string(final.State),
		RouteID:     option.ID,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	s.persistPayment(record, intent.DestinationAddress, ensName, invoiceID, final.State == execution.StateSuccess)

	switch final.State {
	case execution.StateSuccess:
		data := sendResult{
			PaymentID: paymentID,
			State:     final.State,
			TxHash:    final.TxHash,
			TxLink:    final.TxLink,
			RouteID:   option.ID,
			Steps:     final.Steps,
		}
		return s.emitSuccess(commandPath, data, nil, cacheMetaBypass(), nil, false)
	case execution.StateTimedOut:
		return clierr.New(clierr.CodeTimeout, final.Error)
	default:
		if strings.Contains(strings.ToLower(final.Error), "reverted") {
			return clierr.New(clierr.CodeReverted, final.Error)
		}
		return clierr.New(clierr.CodeWallet, final.Error)
	}
}

func (s *runtimeState) confirmSend(cmd *cobra.Command, intent model.PaymentIntent, option model.RouteOption, toSymbol string) bool {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(s.runner.stderr, "Pay %s %s to %s (chain %d -> %d)\n",
		option.DestinationAmountDecimal, toSymbol, intent.DestinationAddress,
		intent.SourceChainID, intent.DestinationChainID)
	_, _ = fmt.Fprintf(s.runner.stderr, "Estimated cost: $%.2f, duration: %ds. Continue? [y/N] ",
		option.TotalCostUSD, option.TotalDurationSeconds)

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// streamProgress drains the event channel until the terminal snapshot. Plain
// mode drives a spinner; json mode stays quiet so stdout carries only the
// final envelope.
func (s *runtimeState) streamProgress(events <-chan execution.Snapshot) execution.Snapshot {
	var final execution.Snapshot

	if s.settings.OutputMode != "plain" {
		for snap := range events {
			final = snap
		}
		return final
	}

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(s.runner.stderr))
	spin.Start()
	for snap := range events {
		final = snap
		spin.Suffix = " " + progressLine(snap)
	}
	spin.Stop()

	for _, step := range final.Steps {
		_, _ = fmt.Fprintf(s.runner.stderr, "  %s %s (%s)\n", stepGlyph(step.Status), step.ToolName, step.Type)
	}
	switch final.State {
	case execution.StateSuccess:
		_, _ = color.New(color.FgGreen).Fprintln(s.runner.stderr, "Payment confirmed.")
	case execution.StateTimedOut:
		_, _ = color.New(color.FgYellow).Fprintln(s.runner.stderr, final.Error)
	default:
		_, _ = color.New(color.FgRed).Fprintln(s.runner.stderr, final.Error)
	}
	if final.TxLink != "" {
		_, _ = fmt.Fprintln(s.runner.stderr, "  "+final.TxLink)
	}
	return final
}

func progressLine(snap execution.Snapshot) string {
	if snap.Message != "" {
		return snap.Message
	}
	return strings.ReplaceAll(string(snap.State), "_", " ")
}

func stepGlyph(status model.StepStatus) string {
	switch status {
	case model.StepCompleted:
		return color.GreenString("✔")
	case model.StepFailed:
		return color.RedString("✘")
	case model.StepExecuting, model.StepActionRequired:
		return color.YellowString("●")
	default:
		return "○"
	}
}

// persistPayment saves the record and bumps the recipient contact. Store
// failures never mask the payment outcome.
func (s *runtimeState) persistPayment(record model.PaymentRecord, recipient, ensName, invoiceID string, success bool) {
	db, err := store.Open(s.settings.StorePath, s.settings.StoreLockPath)
	if err != nil {
		return
	}
	defer db.Close()

	_ = db.SavePayment(record)
	if success {
		_ = db.RecordPaymentForContact(recipient, ensName, store.NewContactID())
		if strings.TrimSpace(invoiceID) != "" {
			if invoice, err := db.GetInvoice(invoiceID); err == nil {
				invoice.Status = "paid"
				_ = db.SaveInvoice(invoice)
			}
		}
	}
}
