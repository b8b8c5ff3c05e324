package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/payflowhq/payflow/internal/ens"
	clierr "github.com/payflowhq/payflow/internal/errors"
	"github.com/payflowhq/payflow/internal/id"
	"github.com/payflowhq/payflow/internal/model"
	"github.com/payflowhq/payflow/internal/store"
)

func (s *runtimeState) openStore() (*store.Store, error) {
	db, err := store.Open(s.settings.StorePath, s.settings.StoreLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open payment store", err)
	}
	return db, nil
}

func (s *runtimeState) newInvoicesCommand() *cobra.Command {
	root := &cobra.Command{Use: "invoices", Short: "Parse, track and pay invoices"}
	root.AddCommand(s.newInvoicesParseCommand())
	root.AddCommand(s.newInvoicesListCommand())
	root.AddCommand(s.newInvoicesShowCommand())
	root.AddCommand(s.newInvoicesPayCommand())
	return root
}

func (s *runtimeState) newInvoicesParseCommand() *cobra.Command {
	var filePath string
	var text string
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Extract payment details from invoice text and store the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			s.resetCommandDiagnostics()

			raw := text
			fileName := ""
			if strings.TrimSpace(filePath) != "" {
				buf, err := os.ReadFile(filePath)
				if err != nil {
					return clierr.Wrap(clierr.CodeUsage, "read invoice file", err)
				}
				raw = string(buf)
				fileName = filepath.Base(filePath)
			}
			if strings.TrimSpace(raw) == "" {
				return clierr.New(clierr.CodeUsage, "provide invoice text with --file or --text")
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			parsed, err := s.parser.Parse(ctx, raw)
			if err != nil {
				return err
			}

			invoice := model.Invoice{
				ID:          store.NewInvoiceID(),
				RawFileName: fileName,
				Parsed:      parsed,
				Status:      "pending",
				CreatedAt:   time.Now().UTC().Format(time.RFC3339),
			}
			db, err := s.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.SaveInvoice(invoice); err != nil {
				return clierr.Wrap(clierr.CodeInternal, "save invoice", err)
			}
			return s.emitSuccess(commandPath, invoice, nil, cacheMetaBypass(), nil, false)
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "Path to an invoice text file")
	cmd.Flags().StringVar(&text, "text", "", "Invoice text inline")
	return cmd
}

func (s *runtimeState) newInvoicesListCommand() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			s.resetCommandDiagnostics()
			db, err := s.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			invoices, err := db.ListInvoices(status, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list invoices", err)
			}
			return s.emitSuccess(commandPath, invoices, nil, cacheMetaBypass(), nil, false)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, paid)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows")
	return cmd
}

func (s *runtimeState) newInvoicesShowCommand() *cobra.Command {
	var invoiceID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one stored invoice",
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			s.resetCommandDiagnostics()
			db, err := s.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			invoice, err := db.GetInvoice(invoiceID)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load invoice", err)
			}
			return s.emitSuccess(commandPath, invoice, nil, cacheMetaBypass(), nil, false)
		},
	}
	cmd.Flags().StringVar(&invoiceID, "id", "", "Invoice id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (s *runtimeState) newInvoicesPayCommand() *cobra.Command {
	var invoiceID string
	var fromChain string
	var fromToken string
	var walletArg string
	var yes bool
	var keySource string
	var rpcOverride string
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Pay a stored invoice from a chosen source chain and token",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := s.openStore()
			if err != nil {
				return err
			}
			invoice, err := db.GetInvoice(invoiceID)
			_ = db.Close()
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load invoice", err)
			}
			if invoice.Status == "paid" {
				return clierr.New(clierr.CodeUsage, "invoice "+invoiceID+" is already paid")
			}
			if strings.TrimSpace(invoice.Parsed.Chain) == "" || strings.TrimSpace(invoice.Parsed.Token) == "" {
				return clierr.New(clierr.CodeUsage, "invoice is missing a destination chain or token")
			}
			if strings.TrimSpace(invoice.Parsed.Amount) == "" {
				return clierr.New(clierr.CodeUsage, "invoice is missing an amount")
			}

			// The invoice fixes the receive side; the payer only picks the
			// source of funds.
			flags := intentFlags{
				fromChain:    fromChain,
				toChain:      invoice.Parsed.Chain,
				fromToken:    fromToken,
				toToken:      invoice.Parsed.Token,
				amount:       invoice.Parsed.Amount,
				wallet:       walletArg,
				recipient:    invoice.Parsed.Recipient,
				exactReceive: true,
			}
			return s.executePayment(cmd, flags, yes, keySource, rpcOverride, invoice.ID)
		},
	}
	cmd.Flags().StringVar(&invoiceID, "id", "", "Invoice id")
	cmd.Flags().StringVar(&fromChain, "from-chain", "", "Source chain (slug or id)")
	cmd.Flags().StringVar(&fromToken, "from-token", "", "Source token (symbol or 0x address)")
	cmd.Flags().StringVar(&walletArg, "wallet", "", "Source wallet address")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	cmd.Flags().StringVar(&keySource, "key-source", "", "Signing key source (env, file, keystore)")
	cmd.Flags().StringVar(&rpcOverride, "rpc-url", "", "RPC endpoint override for the source chain")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("from-chain")
	_ = cmd.MarkFlagRequired("from-token")
	return cmd
}

func (s *runtimeState) newPaymentsCommand() *cobra.Command {
	root := &cobra.Command{Use: "payments", Short: "Payment history"}
	var status string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded payments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			s.resetCommandDiagnostics()
			db, err := s.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			payments, err := db.ListPayments(status, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list payments", err)
			}
			return s.emitSuccess(commandPath, payments, nil, cacheMetaBypass(), nil, false)
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "Filter by terminal state")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows")
	root.AddCommand(listCmd)
	return root
}

func (s *runtimeState) newContactsCommand() *cobra.Command {
	root := &cobra.Command{Use: "contacts", Short: "Recipient address book"}
	root.AddCommand(s.newContactsAddCommand())
	root.AddCommand(s.newContactsListCommand())
	root.AddCommand(s.newContactsShowCommand())
	return root
}

func (s *runtimeState) newContactsAddCommand() *cobra.Command {
	var addressArg string
	var name string
	var notes string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a recipient, resolving ENS names to addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			s.resetCommandDiagnostics()

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			address, ensName, err := s.resolveRecipient(ctx, addressArg)
			cancel()
			if err != nil {
				return err
			}

			db, err := s.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			contact, err := db.GetContactByAddress(address)
			if err != nil {
				contact = model.Contact{ID: store.NewContactID(), Address: strings.ToLower(address)}
			}
			if name != "" {
				contact.Name = name
			}
			if notes != "" {
				contact.Notes = notes
			}
			if ensName != "" {
				contact.ENSName = ensName
			}
			if err := db.SaveContact(contact); err != nil {
				return clierr.Wrap(clierr.CodeInternal, "save contact", err)
			}
			return s.emitSuccess(commandPath, contact, nil, cacheMetaBypass(), nil, false)
		},
	}
	cmd.Flags().StringVar(&addressArg, "address", "", "Recipient 0x address or ENS name")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func (s *runtimeState) newContactsListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			s.resetCommandDiagnostics()
			db, err := s.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			contacts, err := db.ListContacts(limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list contacts", err)
			}
			return s.emitSuccess(commandPath, contacts, nil, cacheMetaBypass(), nil, false)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	return cmd
}

func (s *runtimeState) newContactsShowCommand() *cobra.Command {
	var addressArg string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one contact by address or ENS name",
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			s.resetCommandDiagnostics()

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			address, _, err := s.resolveRecipient(ctx, addressArg)
			cancel()
			if err != nil {
				return err
			}

			db, err := s.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			contact, err := db.GetContactByAddress(address)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load contact", err)
			}
			return s.emitSuccess(commandPath, contact, nil, cacheMetaBypass(), nil, false)
		},
	}
	cmd.Flags().StringVar(&addressArg, "address", "", "Contact 0x address or ENS name")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func (s *runtimeState) newENSCommand() *cobra.Command {
	root := &cobra.Command{Use: "ens", Short: "ENS name lookups against mainnet"}

	resolveCmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Resolve an ENS name to an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			s.resetCommandDiagnostics()
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			address, err := s.names.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			data := map[string]string{"name": strings.ToLower(strings.TrimSpace(args[0])), "address": address}
			return s.emitSuccess(commandPath, data, nil, cacheMetaBypass(), nil, false)
		},
	}

	reverseCmd := &cobra.Command{
		Use:   "reverse <address>",
		Short: "Reverse-resolve an address to its primary ENS name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			s.resetCommandDiagnostics()
			if !id.IsEVMAddress(args[0]) {
				return clierr.New(clierr.CodeUsage, "reverse lookup requires a 0x address")
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			name, err := s.names.ReverseResolve(ctx, args[0])
			if err != nil {
				return err
			}
			data := map[string]string{"address": args[0], "name": name}
			return s.emitSuccess(commandPath, data, nil, cacheMetaBypass(), nil, false)
		},
	}

	profileCmd := &cobra.Command{
		Use:   "profile <name>",
		Short: "Show the address and text records for an ENS name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			s.resetCommandDiagnostics()
			if !ens.IsName(args[0]) {
				return clierr.New(clierr.CodeUsage, args[0]+" does not look like an ENS name")
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			profile, err := s.names.Profile(ctx, args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(commandPath, profile, nil, cacheMetaBypass(), nil, false)
		},
	}

	root.AddCommand(resolveCmd)
	root.AddCommand(reverseCmd)
	root.AddCommand(profileCmd)
	return root
}
