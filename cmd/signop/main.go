package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethaccount/sponsorop/erc4337"
	"github.com/ethaccount/sponsorop/src/app"
	"github.com/ethaccount/sponsorop/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// output is printed to stdout as JSON
type output struct {
	UserOpHash  common.Hash            `json:"userOpHash"`
	Signer      common.Address         `json:"signer"`
	EntryPoint  common.Address         `json:"entryPoint"`
	ChainID     int64                  `json:"chainId"`
	UserOp      *erc4337.UserOperation `json:"userOp"`
	Packed      *erc4337.PackedUserOp  `json:"packed"`
	HandleOps   hexutil.Bytes          `json:"handleOps,omitempty"`
	BundlerHash *common.Hash           `json:"bundlerHash,omitempty"`
}

func main() {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Overload(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
			os.Exit(1)
		}
	}

	cliApp := &cli.App{
		Name:  "signop",
		Usage: "fill, sign and optionally send an ERC-4337 v0.7 user operation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "partial user operation JSON, - reads stdin",
				Value:   "-",
			},
			&cli.Int64Flag{
				Name:    "chain-id",
				Usage:   "chain the signature is bound to",
				EnvVars: []string{"CHAIN_ID"},
				Value:   service.ChainIDSepolia,
			},
			&cli.StringFlag{
				Name:    "entry-point",
				Usage:   "EntryPoint address",
				EnvVars: []string{"ENTRY_POINT_ADDRESS"},
				Value:   erc4337.EntryPointV07.Hex(),
			},
			&cli.StringFlag{
				Name:    "defaults",
				Usage:   "YAML defaults table, empty selects the built-in table",
				EnvVars: []string{"DEFAULTS_PATH"},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "hex signing key",
				EnvVars: []string{"PRIVATE_KEY"},
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "node and bundler endpoint, needed by --fetch-nonce, --estimate and --send",
				EnvVars: []string{"RPC_URL", "SEPOLIA_RPC_URL"},
			},
			&cli.BoolFlag{
				Name:  "fetch-nonce",
				Usage: "read the nonce from the EntryPoint when the input has none",
			},
			&cli.BoolFlag{
				Name:  "estimate",
				Usage: "apply bundler gas estimates before signing",
			},
			&cli.StringFlag{
				Name:  "beneficiary",
				Usage: "also print handleOps calldata paying this address",
			},
			&cli.BoolFlag{
				Name:  "send",
				Usage: "send the signed operation to the bundler and wait for its receipt",
			},
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "how long --send waits for a receipt",
				Value: 2 * time.Minute,
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx)

	privateKey := strings.TrimPrefix(c.String("private-key"), "0x")
	if privateKey == "" {
		return cli.Exit("PRIVATE_KEY or --private-key is required", 1)
	}
	if !common.IsHexAddress(c.String("entry-point")) {
		return cli.Exit(fmt.Sprintf("invalid entry point %q", c.String("entry-point")), 1)
	}
	entryPoint := common.HexToAddress(c.String("entry-point"))
	chainID := c.Int64("chain-id")
	if chainID <= 0 {
		return cli.Exit(fmt.Sprintf("invalid chain id %d", chainID), 1)
	}

	partial, err := readPartial(c.String("file"))
	if err != nil {
		return err
	}

	defaults, err := app.LoadDefaults(c.String("defaults"))
	if err != nil {
		return err
	}

	var chains *service.BlockchainService
	if url := c.String("rpc-url"); url != "" {
		chains = service.NewBlockchainServiceWithURLs(map[int64]string{chainID: url})
		defer chains.Close()
	}
	needChain := func(flag string) error {
		if chains == nil {
			return cli.Exit(fmt.Sprintf("--%s needs --rpc-url", flag), 1)
		}
		return nil
	}

	if c.Bool("fetch-nonce") && partial.Nonce == nil {
		if err := needChain("fetch-nonce"); err != nil {
			return err
		}
		if partial.Sender == nil {
			return cli.Exit("--fetch-nonce needs a sender", 1)
		}
		nonce, err := chains.GetNonce(ctx, chainID, entryPoint, *partial.Sender, big.NewInt(0))
		if err != nil {
			return fmt.Errorf("failed to read nonce: %w", err)
		}
		logger.Info().Str("nonce", nonce.String()).Msg("nonce read from EntryPoint")
		partial.Nonce = nonce
	}

	op, err := erc4337.FillDefaults(partial, defaults)
	if err != nil {
		return err
	}

	if c.Bool("estimate") {
		if err := needChain("estimate"); err != nil {
			return err
		}
		bundler, err := chains.GetBundlerClient(ctx, chainID)
		if err != nil {
			return err
		}
		estimates, err := bundler.EstimateUserOperationGas(ctx, op, entryPoint)
		if err != nil {
			return fmt.Errorf("failed to estimate gas: %w", err)
		}
		op = estimates.Apply(op)
		logger.Info().
			Str("verification_gas_limit", op.VerificationGasLimit.String()).
			Str("call_gas_limit", op.CallGasLimit.String()).
			Str("pre_verification_gas", op.PreVerificationGas.String()).
			Msg("gas estimates applied")
	}

	key, err := hexutil.Decode("0x" + privateKey)
	if err != nil {
		return fmt.Errorf("failed to decode private key: %w", err)
	}
	signed, err := erc4337.Sign(op, key, entryPoint, big.NewInt(chainID))
	if err != nil {
		return err
	}

	hash, err := erc4337.UserOpHash(signed, entryPoint, big.NewInt(chainID))
	if err != nil {
		return err
	}
	signer, err := erc4337.RecoverSigner(signed, entryPoint, big.NewInt(chainID))
	if err != nil {
		return err
	}
	packed, err := signed.Pack()
	if err != nil {
		return err
	}

	result := output{
		UserOpHash: hash,
		Signer:     signer,
		EntryPoint: entryPoint,
		ChainID:    chainID,
		UserOp:     signed,
		Packed:     packed,
	}

	if beneficiary := c.String("beneficiary"); beneficiary != "" {
		if !common.IsHexAddress(beneficiary) {
			return cli.Exit(fmt.Sprintf("invalid beneficiary %q", beneficiary), 1)
		}
		result.HandleOps, err = erc4337.EncodeHandleOps([]*erc4337.PackedUserOp{packed}, common.HexToAddress(beneficiary))
		if err != nil {
			return err
		}
	}

	if c.Bool("send") {
		if err := needChain("send"); err != nil {
			return err
		}
		bundlerHash, err := send(ctx, chains, chainID, signed, entryPoint, c.Duration("wait"))
		if err != nil {
			return err
		}
		result.BundlerHash = &bundlerHash
	}

	encoder := json.NewEncoder(c.App.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func readPartial(path string) (*erc4337.PartialUserOperation, error) {
	var reader io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		reader = f
	}

	var partial erc4337.PartialUserOperation
	if err := json.NewDecoder(reader).Decode(&partial); err != nil {
		return nil, fmt.Errorf("failed to parse user operation: %w", err)
	}
	return &partial, nil
}

// send hands the operation to the bundler and polls for its receipt until wait
// elapses
func send(ctx context.Context, chains *service.BlockchainService, chainID int64, op *erc4337.UserOperation, entryPoint common.Address, wait time.Duration) (common.Hash, error) {
	logger := zerolog.Ctx(ctx)

	bundler, err := chains.GetBundlerClient(ctx, chainID)
	if err != nil {
		return common.Hash{}, err
	}

	userOpHash, err := bundler.SendUserOperation(ctx, op, entryPoint)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send user operation: %w", err)
	}
	logger.Info().Str("user_op_hash", userOpHash.Hex()).Msg("user operation sent")

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Warn().Str("user_op_hash", userOpHash.Hex()).Msg("no receipt before deadline")
			return userOpHash, nil
		case <-ticker.C:
			receipt, err := bundler.GetUserOperationReceipt(ctx, userOpHash)
			if err != nil {
				logger.Debug().Err(err).Msg("receipt not yet available")
				continue
			}
			if receipt == nil {
				continue
			}
			logger.Info().
				Bool("success", receipt.Success).
				Str("tx_hash", receipt.TransactionHash().Hex()).
				Str("actual_gas_cost", receipt.ActualGasCost).
				Str("reason", receipt.Reason).
				Msg("user operation receipt")
			return userOpHash, nil
		}
	}
}
