// oftdispatch fetches a cross-chain route quote, rewrites the refund address
// inside each route's OFT send call, and submits the modified call (plus any
// prerequisite token approval), trying routes in order until one confirms.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"github.com/bridgekit/oftdispatch/dispatch"
	"github.com/bridgekit/oftdispatch/ledger"
	"github.com/bridgekit/oftdispatch/quote"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file; flags override file values",
	}
	quoteURLFlag = &cli.StringFlag{
		Name:  "quote.url",
		Usage: "Base URL of the routing API",
		Value: "https://li.quest/v1",
	}
	rpcURLFlag = &cli.StringFlag{
		Name:  "rpc.url",
		Usage: "JSON-RPC endpoint of the source chain",
	}
	chainIDFlag = &cli.Int64Flag{
		Name:  "chainid",
		Usage: "Chain ID used for transaction signing",
	}
	keyFlag = &cli.StringFlag{
		Name:  "key",
		Usage: "Hex-encoded private key of the sending account",
	}
	fromChainFlag = &cli.Int64Flag{
		Name:  "from.chain",
		Usage: "Source chain ID for the quote",
	}
	toChainFlag = &cli.Int64Flag{
		Name:  "to.chain",
		Usage: "Destination chain ID for the quote",
	}
	fromTokenFlag = &cli.StringFlag{
		Name:  "from.token",
		Usage: "Source token contract address",
	}
	toTokenFlag = &cli.StringFlag{
		Name:  "to.token",
		Usage: "Destination token contract address",
	}
	recipientFlag = &cli.StringFlag{
		Name:  "to.address",
		Usage: "Destination recipient address",
	}
	amountFlag = &cli.StringFlag{
		Name:  "amount",
		Usage: "Amount to send, decimal, in the token's smallest unit",
	}
	minAmountFlag = &cli.StringFlag{
		Name:  "amount.min",
		Usage: "Minimum acceptable destination amount (optional)",
	}
	refundFlag = &cli.StringFlag{
		Name:  "refund",
		Usage: "Refund address written into the transfer call",
	}
	confirmTimeoutFlag = &cli.DurationFlag{
		Name:  "confirm.timeout",
		Usage: "Upper bound for each confirmation wait (0 disables)",
		Value: 5 * time.Minute,
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
)

func main() {
	app := &cli.App{
		Name:  "oftdispatch",
		Usage: "dispatch a cross-chain OFT transfer with a rewritten refund address",
		Flags: []cli.Flag{
			configFileFlag, quoteURLFlag, rpcURLFlag, chainIDFlag, keyFlag,
			fromChainFlag, toChainFlag, fromTokenFlag, toTokenFlag,
			recipientFlag, amountFlag, minAmountFlag, refundFlag,
			confirmTimeoutFlag, verbosityFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)), true)
	log.SetDefault(log.NewLogger(handler))
	logger := log.New("component", "main")

	cfg, err := resolveConfig(ctx)
	if err != nil {
		return err
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Key, "0x"))
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	refund := common.HexToAddress(cfg.Refund)

	confirmTimeout, err := parseConfirmTimeout(ctx, cfg)
	if err != nil {
		return err
	}

	runCtx := context.Background()

	client, err := ledger.NewClient(runCtx, cfg.RPCURL, key, big.NewInt(cfg.ChainID), confirmTimeout)
	if err != nil {
		return err
	}
	defer client.Close()

	routes, err := quote.NewClient(cfg.QuoteURL, nil).Routes(runCtx, quote.RoutesRequest{
		FromChainID: cfg.FromChain,
		ToChainID:   cfg.ToChain,
		FromToken:   common.HexToAddress(cfg.FromToken),
		ToToken:     common.HexToAddress(cfg.ToToken),
		FromAddress: client.From(),
		ToAddress:   common.HexToAddress(cfg.Recipient),
		FromAmount:  cfg.Amount,
		ToAmountMin: cfg.MinAmount,
	})
	if err != nil {
		return err
	}

	d := dispatch.New(client, refund)
	events := make(chan dispatch.Event, 16)
	sub := d.SubscribeEvents(events)
	defer sub.Unsubscribe()
	go reportEvents(logger, events)

	confirmed, results, err := d.Run(runCtx, routes)
	if err != nil {
		return err
	}
	if confirmed == nil {
		return cli.Exit(fmt.Sprintf("no route confirmed (%d attempted)", len(results)), 1)
	}
	logger.Info("Transfer dispatched", "route", confirmed.RouteID, "tx", confirmed.TxHash)
	return nil
}

// resolveConfig loads the optional config file and lets set flags override
// its values, then validates the combination.
func resolveConfig(ctx *cli.Context) (*config, error) {
	cfg := &config{QuoteURL: quoteURLFlag.Value}
	if path := ctx.String(configFileFlag.Name); path != "" {
		if err := loadConfig(path, cfg); err != nil {
			return nil, err
		}
	}
	if ctx.IsSet(quoteURLFlag.Name) {
		cfg.QuoteURL = ctx.String(quoteURLFlag.Name)
	}
	if ctx.IsSet(rpcURLFlag.Name) {
		cfg.RPCURL = ctx.String(rpcURLFlag.Name)
	}
	if ctx.IsSet(chainIDFlag.Name) {
		cfg.ChainID = ctx.Int64(chainIDFlag.Name)
	}
	if ctx.IsSet(keyFlag.Name) {
		cfg.Key = ctx.String(keyFlag.Name)
	}
	if ctx.IsSet(fromChainFlag.Name) {
		cfg.FromChain = ctx.Int64(fromChainFlag.Name)
	}
	if ctx.IsSet(toChainFlag.Name) {
		cfg.ToChain = ctx.Int64(toChainFlag.Name)
	}
	if ctx.IsSet(fromTokenFlag.Name) {
		cfg.FromToken = ctx.String(fromTokenFlag.Name)
	}
	if ctx.IsSet(toTokenFlag.Name) {
		cfg.ToToken = ctx.String(toTokenFlag.Name)
	}
	if ctx.IsSet(recipientFlag.Name) {
		cfg.Recipient = ctx.String(recipientFlag.Name)
	}
	if ctx.IsSet(amountFlag.Name) {
		cfg.Amount = ctx.String(amountFlag.Name)
	}
	if ctx.IsSet(minAmountFlag.Name) {
		cfg.MinAmount = ctx.String(minAmountFlag.Name)
	}
	if ctx.IsSet(refundFlag.Name) {
		cfg.Refund = ctx.String(refundFlag.Name)
	}
	return cfg, validateConfig(cfg)
}

func validateConfig(cfg *config) error {
	switch {
	case cfg.RPCURL == "":
		return fmt.Errorf("missing --%s", rpcURLFlag.Name)
	case cfg.ChainID == 0:
		return fmt.Errorf("missing --%s", chainIDFlag.Name)
	case cfg.Key == "":
		return fmt.Errorf("missing --%s", keyFlag.Name)
	case cfg.FromChain == 0 || cfg.ToChain == 0:
		return fmt.Errorf("missing --%s/--%s", fromChainFlag.Name, toChainFlag.Name)
	case !common.IsHexAddress(cfg.FromToken) || !common.IsHexAddress(cfg.ToToken):
		return fmt.Errorf("missing or invalid --%s/--%s", fromTokenFlag.Name, toTokenFlag.Name)
	case !common.IsHexAddress(cfg.Recipient):
		return fmt.Errorf("missing or invalid --%s", recipientFlag.Name)
	case !common.IsHexAddress(cfg.Refund):
		return fmt.Errorf("missing or invalid --%s", refundFlag.Name)
	}
	if _, err := uint256.FromDecimal(cfg.Amount); err != nil {
		return fmt.Errorf("invalid --%s %q: %w", amountFlag.Name, cfg.Amount, err)
	}
	if cfg.MinAmount != "" {
		if _, err := uint256.FromDecimal(cfg.MinAmount); err != nil {
			return fmt.Errorf("invalid --%s %q: %w", minAmountFlag.Name, cfg.MinAmount, err)
		}
	}
	return nil
}

func parseConfirmTimeout(ctx *cli.Context, cfg *config) (time.Duration, error) {
	if ctx.IsSet(confirmTimeoutFlag.Name) || cfg.ConfirmTimeout == "" {
		return ctx.Duration(confirmTimeoutFlag.Name), nil
	}
	d, err := time.ParseDuration(cfg.ConfirmTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid ConfirmTimeout %q: %w", cfg.ConfirmTimeout, err)
	}
	return d, nil
}

// reportEvents renders the dispatcher's progress feed for the console.
func reportEvents(logger log.Logger, events <-chan dispatch.Event) {
	for ev := range events {
		switch ev.Kind {
		case dispatch.RouteStarted:
			logger.Info("Route started", "route", ev.RouteID)
		case dispatch.StepsClassified:
			logger.Info("Steps classified", "route", ev.RouteID, "approval", ev.HasApproval, "transferIndex", ev.TransferIndex)
		case dispatch.ApprovalConfirmed:
			logger.Info("Approval confirmed", "route", ev.RouteID, "tx", ev.TxHash)
		case dispatch.RefundOverridden:
			logger.Info("Refund overridden", "route", ev.RouteID, "quoted", ev.QuotedRefund, "override", ev.OverrideRefund)
		case dispatch.Verified:
			logger.Info("Round-trip verification passed", "route", ev.RouteID)
		case dispatch.Submitted:
			logger.Info("Transfer submitted", "route", ev.RouteID, "tx", ev.TxHash)
		case dispatch.RouteFinished:
			if ev.Err != nil {
				logger.Warn("Route finished", "route", ev.RouteID, "outcome", ev.Outcome, "err", ev.Err)
			} else {
				logger.Info("Route finished", "route", ev.RouteID, "outcome", ev.Outcome)
			}
		}
	}
}
