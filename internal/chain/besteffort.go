package chain

import (
	"context"
	"math/big"

	"go.uber.org/zap"
)

// Best-effort variants of the write operations. A failed write is logged
// and reported as ok=false; it can never propagate an error into a
// user-facing path.

func (c *Client) TryCreateFile(ctx context.Context, fileID, contentID string, price *big.Int, expiryTime, maxDownloads int64, burnAfterDownload bool) (string, bool) {
	txHash, err := c.CreateFile(ctx, fileID, contentID, price, expiryTime, maxDownloads, burnAfterDownload)
	if err != nil {
		c.logger.Warn("on-chain file registration failed, off-chain record remains authoritative",
			zap.String("file_id", fileID),
			zap.Error(err),
		)
		return "", false
	}
	return txHash, true
}

func (c *Client) TryRecordDownload(ctx context.Context, fileID, address string) (string, bool) {
	txHash, err := c.RecordDownload(ctx, fileID, address)
	if err != nil {
		c.logger.Warn("on-chain download record failed",
			zap.String("file_id", fileID),
			zap.String("user", address),
			zap.Error(err),
		)
		return "", false
	}
	return txHash, true
}

func (c *Client) TryRecordCrossChainPayment(ctx context.Context, fileID, payer string, amount *big.Int) (string, bool) {
	txHash, err := c.RecordCrossChainPayment(ctx, fileID, payer, amount)
	if err != nil {
		c.logger.Warn("on-chain payment record failed, retryable by order id",
			zap.String("file_id", fileID),
			zap.String("payer", payer),
			zap.Error(err),
		)
		return "", false
	}
	return txHash, true
}
