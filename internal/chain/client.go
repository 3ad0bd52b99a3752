// Package chain wraps the access-control contract behind typed read and
// write operations. Reads are authoritative for entitlement decisions;
// writes are audit records and are exposed both as fallible calls and as
// best-effort Try variants that absorb failures.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/conf"
)

const contractABI = `[
  {"type":"function","name":"hasAccess","stateMutability":"view","inputs":[{"name":"fileId","type":"string"},{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getFile","stateMutability":"view","inputs":[{"name":"fileId","type":"string"}],"outputs":[{"name":"contentId","type":"string"},{"name":"owner","type":"address"},{"name":"price","type":"uint256"},{"name":"expiryTime","type":"uint256"},{"name":"maxDownloads","type":"uint256"},{"name":"downloadCount","type":"uint256"},{"name":"burnAfterDownload","type":"bool"},{"name":"active","type":"bool"},{"name":"createdAt","type":"uint256"}]},
  {"type":"function","name":"createFile","stateMutability":"nonpayable","inputs":[{"name":"fileId","type":"string"},{"name":"contentId","type":"string"},{"name":"price","type":"uint256"},{"name":"expiryTime","type":"uint256"},{"name":"maxDownloads","type":"uint256"},{"name":"burnAfterDownload","type":"bool"}],"outputs":[]},
  {"type":"function","name":"recordDownload","stateMutability":"nonpayable","inputs":[{"name":"fileId","type":"string"},{"name":"user","type":"address"}],"outputs":[]},
  {"type":"function","name":"recordCrossChainPayment","stateMutability":"nonpayable","inputs":[{"name":"fileId","type":"string"},{"name":"payer","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// ErrNoSigner is returned by write operations when no signing key is
// configured. Reads never require a signer.
var ErrNoSigner = errors.New("chain: no signing key configured")

// Terms mirrors the on-chain file record returned by getFile.
type Terms struct {
	ContentID         string
	Owner             string
	Price             *big.Int
	ExpiryTime        int64
	MaxDownloads      int64
	DownloadCount     int64
	BurnAfterDownload bool
	Active            bool
	CreatedAt         int64
}

type Client struct {
	cfg      conf.ChainConfig
	backend  *ethclient.Client
	contract *bind.BoundContract
	signer   *ecdsa.PrivateKey
	chainID  *big.Int
	logger   *zap.Logger
}

func New(cfg conf.ChainConfig, logger *zap.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("chain: rpc_url is required")
	}
	if cfg.ContractAddress == "" {
		return nil, errors.New("chain: contract_address is required")
	}

	backend, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		backend: backend,
		contract: bind.NewBoundContract(
			common.HexToAddress(cfg.ContractAddress), parsed, backend, backend, backend),
		chainID: big.NewInt(cfg.ChainID),
		logger:  logger,
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.signer = key
	} else {
		logger.Warn("chain signing key not configured, on-chain writes disabled")
	}

	return c, nil
}

func (c *Client) Close() {
	c.backend.Close()
}

// HasAccess reports whether an address is entitled to download a file.
func (c *Client) HasAccess(ctx context.Context, fileID, address string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "hasAccess",
		fileID, common.HexToAddress(address))
	if err != nil {
		return false, fmt.Errorf("hasAccess: %w", err)
	}
	return out[0].(bool), nil
}

// GetFile reads the on-chain terms for a file.
func (c *Client) GetFile(ctx context.Context, fileID string) (*Terms, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getFile", fileID)
	if err != nil {
		return nil, fmt.Errorf("getFile: %w", err)
	}

	return &Terms{
		ContentID:         out[0].(string),
		Owner:             out[1].(common.Address).Hex(),
		Price:             out[2].(*big.Int),
		ExpiryTime:        out[3].(*big.Int).Int64(),
		MaxDownloads:      out[4].(*big.Int).Int64(),
		DownloadCount:     out[5].(*big.Int).Int64(),
		BurnAfterDownload: out[6].(bool),
		Active:            out[7].(bool),
		CreatedAt:         out[8].(*big.Int).Int64(),
	}, nil
}

// CreateFile registers a file's terms on-chain.
func (c *Client) CreateFile(ctx context.Context, fileID, contentID string, price *big.Int, expiryTime, maxDownloads int64, burnAfterDownload bool) (string, error) {
	return c.transact(ctx, "createFile",
		fileID, contentID, price, big.NewInt(expiryTime), big.NewInt(maxDownloads), burnAfterDownload)
}

// RecordDownload appends a download audit record on-chain.
func (c *Client) RecordDownload(ctx context.Context, fileID, address string) (string, error) {
	return c.transact(ctx, "recordDownload", fileID, common.HexToAddress(address))
}

// RecordCrossChainPayment records a settled cross-chain payment. The
// contract keys the record by (fileId, payer), so repeating the call for the
// same order is safe.
func (c *Client) RecordCrossChainPayment(ctx context.Context, fileID, payer string, amount *big.Int) (string, error) {
	return c.transact(ctx, "recordCrossChainPayment", fileID, common.HexToAddress(payer), amount)
}

func (c *Client) transact(ctx context.Context, method string, args ...interface{}) (string, error) {
	if c.signer == nil {
		return "", ErrNoSigner
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	opts, err := bind.NewKeyedTransactorWithChainID(c.signer, c.chainID)
	if err != nil {
		return "", fmt.Errorf("%s: build transactor: %w", method, err)
	}
	opts.Context = ctx

	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}

	if _, err := bind.WaitMined(ctx, c.backend, tx); err != nil {
		return tx.Hash().Hex(), fmt.Errorf("%s: wait mined: %w", method, err)
	}
	return tx.Hash().Hex(), nil
}
