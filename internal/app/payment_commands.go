package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/payflowhq/payflow/internal/ens"
	clierr "github.com/payflowhq/payflow/internal/errors"
	"github.com/payflowhq/payflow/internal/id"
	"github.com/payflowhq/payflow/internal/model"
	"github.com/payflowhq/payflow/internal/registry"
)

const (
	balancesTTL = 30 * time.Second
	routesTTL   = 30 * time.Second
)

// intentFlags is the shared flag set for routes, quote and send.
type intentFlags struct {
	fromChain    string
	toChain      string
	fromToken    string
	toToken      string
	amount       string
	wallet       string
	recipient    string
	exactReceive bool
	slippageBps  int64
}

func (f *intentFlags) define(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.fromChain, "from-chain", "", "Source chain (slug or id)")
	cmd.Flags().StringVar(&f.toChain, "to-chain", "", "Destination chain (slug or id)")
	cmd.Flags().StringVar(&f.fromToken, "from-token", "", "Source token (symbol or 0x address)")
	cmd.Flags().StringVar(&f.toToken, "to-token", "", "Destination token (symbol or 0x address)")
	cmd.Flags().StringVar(&f.amount, "amount", "", "Amount as a decimal string")
	cmd.Flags().StringVar(&f.wallet, "wallet", "", "Source wallet address")
	cmd.Flags().StringVar(&f.recipient, "to", "", "Recipient (0x address or ENS name)")
	cmd.Flags().BoolVar(&f.exactReceive, "exact-receive", false, "Amount denominates the destination token")
	cmd.Flags().Int64Var(&f.slippageBps, "slippage-bps", 0, "Slippage tolerance in basis points")
}

func (f *intentFlags) register(cmd *cobra.Command) {
	f.define(cmd)
	_ = cmd.MarkFlagRequired("from-chain")
	_ = cmd.MarkFlagRequired("to-chain")
	_ = cmd.MarkFlagRequired("from-token")
	_ = cmd.MarkFlagRequired("to-token")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("wallet")
	_ = cmd.MarkFlagRequired("to")
}

func parseChainArg(input string) (id.Chain, error) {
	return id.ParseChain(input)
}

// resolveToken resolves a token input on a chain. Native symbols map to the
// zero-address sentinel; other symbols go through the registry's per-chain
// table, so a listed token with no deployment on the chain is rejected
// instead of silently falling through. Addresses and symbols the registry
// does not know fall back to the bootstrap token table.
func resolveToken(input string, chain id.Chain) (id.Token, error) {
	raw := strings.TrimSpace(input)
	symbol := strings.ToUpper(raw)
	if registry.IsNativeToken(symbol, chain.ChainID) {
		return id.Token{Symbol: symbol, Address: registry.ZeroAddress, Decimals: 18}, nil
	}
	if !id.IsEVMAddress(raw) {
		if info, listed := registry.ReceiveTokenBySymbol(symbol); listed {
			address, onChain := registry.TokenAddressOnChain(symbol, chain.ChainID)
			if !onChain || registry.IsZeroAddress(address) {
				return id.Token{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("%s is not available on %s", info.Symbol, chain.Name))
			}
			return id.Token{Symbol: info.Symbol, Address: address, Decimals: info.Decimals}, nil
		}
	}
	return id.ParseToken(raw, chain)
}

// resolveRecipient returns the checksummed address plus the ENS name when the
// input was a name.
func (s *runtimeState) resolveRecipient(ctx context.Context, input string) (string, string, error) {
	raw := strings.TrimSpace(input)
	if id.IsEVMAddress(raw) {
		return raw, "", nil
	}
	if !ens.IsName(raw) {
		return "", "", clierr.New(clierr.CodeUsage, fmt.Sprintf("recipient %q is neither an address nor an ENS name", input))
	}
	address, err := s.names.Resolve(ctx, raw)
	if err != nil {
		return "", "", err
	}
	return address, strings.ToLower(raw), nil
}

// buildIntent converts the flag set into an immutable payment intent. The
// decimal amount is converted to base units exactly once, here.
func (s *runtimeState) buildIntent(ctx context.Context, f intentFlags) (model.PaymentIntent, id.Token, string, error) {
	fromChain, err := id.ParseChain(f.fromChain)
	if err != nil {
		return model.PaymentIntent{}, id.Token{}, "", err
	}
	toChain, err := id.ParseChain(f.toChain)
	if err != nil {
		return model.PaymentIntent{}, id.Token{}, "", err
	}
	fromToken, err := resolveToken(f.fromToken, fromChain)
	if err != nil {
		return model.PaymentIntent{}, id.Token{}, "", err
	}
	toToken, err := resolveToken(f.toToken, toChain)
	if err != nil {
		return model.PaymentIntent{}, id.Token{}, "", err
	}
	if !id.IsEVMAddress(f.wallet) {
		return model.PaymentIntent{}, id.Token{}, "", clierr.New(clierr.CodeUsage, "wallet must be a 0x address")
	}
	recipient, ensName, err := s.resolveRecipient(ctx, f.recipient)
	if err != nil {
		return model.PaymentIntent{}, id.Token{}, "", err
	}

	amountToken := fromToken
	mode := model.AmountModeExactSend
	if f.exactReceive {
		amountToken = toToken
		mode = model.AmountModeExactReceive
	}
	// Unknown-address tokens carry no decimals; their amount is read as
	// base units directly.
	baseUnits, _, err := id.NormalizeAmount("", f.amount, amountToken.Decimals)
	if err != nil {
		return model.PaymentIntent{}, id.Token{}, "", err
	}

	intent := model.PaymentIntent{
		SourceChainID:      fromChain.ChainID,
		SourceTokenAddress: fromToken.Address,
		SourceWallet:       f.wallet,
		DestinationChainID: toChain.ChainID,
		DestinationToken:   toToken.Address,
		DestinationAddress: recipient,
		AmountBaseUnits:    baseUnits,
		AmountMode:         mode,
		SlippageBps:        f.slippageBps,
	}
	if intent.SlippageBps <= 0 {
		intent.SlippageBps = s.settings.SlippageBps
	}
	return intent, toToken, ensName, nil
}

func (s *runtimeState) newBalancesCommand() *cobra.Command {
	var walletArg string
	var chainArg string
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "List wallet token balances across supported chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())

			resolveCtx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			address, _, err := s.resolveRecipient(resolveCtx, walletArg)
			cancel()
			if err != nil {
				return err
			}

			chainIDs := make([]int64, 0, 5)
			if strings.TrimSpace(chainArg) != "" {
				chain, err := parseChainArg(chainArg)
				if err != nil {
					return err
				}
				chainIDs = append(chainIDs, chain.ChainID)
			} else {
				for _, chain := range registry.SupportedChains() {
					chainIDs = append(chainIDs, chain.ChainID)
				}
			}

			key := cacheKey(commandPath, map[string]any{"wallet": strings.ToLower(address), "chains": chainIDs})
			return s.runCachedCommand(commandPath, key, balancesTTL, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				started := time.Now()
				balances, err := s.lifi.TokenBalances(ctx, address, chainIDs)
				status := []model.ProviderStatus{{
					Name:      s.lifi.Info().Name,
					Status:    statusFromErr(err),
					LatencyMS: time.Since(started).Milliseconds(),
				}}
				if err != nil {
					return nil, status, nil, false, err
				}
				rows := make([]model.WalletTokenBalance, 0, len(balances))
				for _, b := range balances {
					rows = append(rows, model.WalletTokenBalance{
						Symbol:        b.Symbol,
						Name:          b.Name,
						ChainID:       b.ChainID,
						TokenAddress:  b.Address,
						AmountRaw:     b.Amount,
						AmountDecimal: id.FormatDecimal(b.Amount, b.Decimals),
						Decimals:      b.Decimals,
						PriceUSD:      b.PriceUSD,
					})
				}
				return rows, status, nil, false, nil
			})
		},
	}
	cmd.Flags().StringVar(&walletArg, "wallet", "", "Wallet address or ENS name")
	cmd.Flags().StringVar(&chainArg, "chain", "", "Restrict to one chain (slug or id)")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

func (s *runtimeState) newRoutesCommand() *cobra.Command {
	var flags intentFlags
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List route options for a payment, tagged by speed and cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())

			buildCtx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			intent, _, _, err := s.buildIntent(buildCtx, flags)
			cancel()
			if err != nil {
				return err
			}
			if err := s.engine.ValidateIntent(intent); err != nil {
				return err
			}

			key := cacheKey(commandPath, intent)
			return s.runCachedCommand(commandPath, key, routesTTL, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				started := time.Now()
				options, err := s.engine.Routes(ctx, intent)
				status := []model.ProviderStatus{{
					Name:      s.lifi.Info().Name,
					Status:    statusFromErr(err),
					LatencyMS: time.Since(started).Milliseconds(),
				}}
				if err != nil {
					return nil, status, nil, false, err
				}
				var warnings []string
				if len(options) == 0 {
					// Empty is a normal outcome, not an error.
					warnings = []string{"No route found for this transfer. Try a different token pair or amount."}
				}
				return options, status, warnings, false, nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var flags intentFlags
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Fetch the single best executable quote for a payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())

			buildCtx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			intent, _, _, err := s.buildIntent(buildCtx, flags)
			cancel()
			if err != nil {
				return err
			}
			if err := s.engine.ValidateIntent(intent); err != nil {
				return err
			}

			key := cacheKey(commandPath, intent)
			return s.runCachedCommand(commandPath, key, routesTTL, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				started := time.Now()
				option, err := s.engine.Quote(ctx, intent)
				status := []model.ProviderStatus{{
					Name:      s.lifi.Info().Name,
					Status:    statusFromErr(err),
					LatencyMS: time.Since(started).Milliseconds(),
				}}
				if err != nil {
					return nil, status, nil, false, err
				}
				return option, status, nil, false, nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (s *runtimeState) newStatusCommand() *cobra.Command {
	var txHash string
	var fromChain string
	var toChain string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the settlement status of a cross-chain transfer",
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			s.resetCommandDiagnostics()

			var fromID, toID int64
			if strings.TrimSpace(fromChain) != "" {
				chain, err := parseChainArg(fromChain)
				if err != nil {
					return err
				}
				fromID = chain.ChainID
			}
			if strings.TrimSpace(toChain) != "" {
				chain, err := parseChainArg(toChain)
				if err != nil {
					return err
				}
				toID = chain.ChainID
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			started := time.Now()
			resp, err := s.lifi.Status(ctx, txHash, fromID, toID)
			providerStatus := []model.ProviderStatus{{
				Name:      s.lifi.Info().Name,
				Status:    statusFromErr(err),
				LatencyMS: time.Since(started).Milliseconds(),
			}}
			s.captureCommandDiagnostics(nil, providerStatus, false)
			if err != nil {
				return err
			}
			data := model.TransferStatus{
				Status:           resp.Status,
				SubStatus:        resp.SubStatus,
				SubStatusMessage: resp.SubStatusMessage,
				Tool:             resp.Tool,
				SendingTxHash:    resp.Sending.TxHash,
				SendingTxLink:    resp.Sending.TxLink,
				ReceivingTxHash:  resp.Receiving.TxHash,
				ReceivingTxLink:  resp.Receiving.TxLink,
			}
			return s.emitSuccess(commandPath, data, nil, cacheMetaBypass(), providerStatus, false)
		},
	}
	cmd.Flags().StringVar(&txHash, "tx", "", "Sending transaction hash")
	cmd.Flags().StringVar(&fromChain, "from-chain", "", "Source chain (slug or id)")
	cmd.Flags().StringVar(&toChain, "to-chain", "", "Destination chain (slug or id)")
	_ = cmd.MarkFlagRequired("tx")
	return cmd
}

func (s *runtimeState) newAllowanceCommand() *cobra.Command {
	var chainArg string
	var tokenArg string
	var ownerArg string
	var spenderArg string
	var rpcOverride string
	cmd := &cobra.Command{
		Use:   "allowance",
		Short: "Read the current ERC-20 allowance for a spender",
		RunE: func(cmd *cobra.Command, args []string) error {
			commandPath := trimRootPath(cmd.CommandPath())
			s.resetCommandDiagnostics()

			chain, err := parseChainArg(chainArg)
			if err != nil {
				return err
			}
			token, err := resolveToken(tokenArg, chain)
			if err != nil {
				return err
			}
			if registry.IsZeroAddress(token.Address) {
				return clierr.New(clierr.CodeUsage, "native tokens do not carry allowances")
			}
			if !id.IsEVMAddress(ownerArg) || !id.IsEVMAddress(spenderArg) {
				return clierr.New(clierr.CodeUsage, "owner and spender must be 0x addresses")
			}

			rpcURL, err := registry.ResolveRPCURL(rpcOverride, chain.ChainID)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "resolve rpc endpoint", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			amount, err := readAllowance(ctx, rpcURL, token.Address, ownerArg, spenderArg)
			if err != nil {
				return err
			}
			data := map[string]any{
				"chain_id":             chain.ChainID,
				"token_address":        token.Address,
				"owner":                ownerArg,
				"spender":              spenderArg,
				"allowance_base_units": amount,
			}
			if token.Decimals > 0 {
				data["allowance_decimal"] = id.FormatDecimal(amount, token.Decimals)
			}
			return s.emitSuccess(commandPath, data, nil, cacheMetaBypass(), nil, false)
		},
	}
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain (slug or id)")
	cmd.Flags().StringVar(&tokenArg, "token", "", "Token (symbol or 0x address)")
	cmd.Flags().StringVar(&ownerArg, "owner", "", "Token owner address")
	cmd.Flags().StringVar(&spenderArg, "spender", "", "Spender contract address")
	cmd.Flags().StringVar(&rpcOverride, "rpc-url", "", "RPC endpoint override")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("spender")
	return cmd
}

func readAllowance(ctx context.Context, rpcURL, token, owner, spender string) (string, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	defer client.Close()

	parsed, err := abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "parse erc20 abi", err)
	}
	input, err := parsed.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "encode allowance call", err)
	}
	tokenAddr := common.HexToAddress(token)
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: input}, nil)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "read allowance", err)
	}
	values, err := parsed.Unpack("allowance", raw)
	if err != nil || len(values) == 0 {
		return "0", nil
	}
	if v, ok := values[0].(interface{ String() string }); ok {
		return v.String(), nil
	}
	return "0", nil
}
