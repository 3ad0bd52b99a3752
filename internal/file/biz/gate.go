package biz

import (
	"context"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
	"github.com/chaindrop/chaindrop-backend/internal/pkg/filecrypto"
)

type DecisionStatus string

const (
	DecisionGranted     DecisionStatus = "granted"
	DecisionDenied      DecisionStatus = "denied"
	DecisionNotFound    DecisionStatus = "not_found"
	DecisionLinkExpired DecisionStatus = "link_expired"
)

// Machine-readable denial reasons; the UI distinguishes "pay first" from a
// server failure by these.
const (
	ReasonPasswordRequired   = "password_required"
	ReasonIncorrectPassword  = "incorrect_password"
	ReasonNotEntitled        = "not_entitled"
	ReasonAccessUnverifiable = "access_unverifiable"
	ReasonExpired            = "expired"
	ReasonInactive           = "inactive"
)

type Decision struct {
	Status DecisionStatus
	Reason string
}

func granted() Decision             { return Decision{Status: DecisionGranted} }
func denied(reason string) Decision { return Decision{Status: DecisionDenied, Reason: reason} }

// AccessProof is whatever the caller presents for the password gate: the
// raw share password, or a view token previously issued by VerifyPassword.
type AccessProof struct {
	Password  string
	ViewToken string
}

// AccessGate renders download-eligibility decisions. The on-chain
// entitlement check is authoritative; the link-expiry and password gates
// protect metadata visibility even for users who have already paid.
type AccessGate struct {
	repo   FileRepo
	chain  ChainReader
	tokens *TokenIssuer
	logger *zap.Logger
	now    func() time.Time
}

func NewAccessGate(repo FileRepo, chainReader ChainReader, tokens *TokenIssuer, logger *zap.Logger) *AccessGate {
	return &AccessGate{
		repo:   repo,
		chain:  chainReader,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// Decide evaluates the gates in order, short-circuiting on the first
// disqualifying condition. The chain is never consulted before the
// link-expiry and password gates pass.
func (g *AccessGate) Decide(ctx context.Context, fileID, requester string, proof AccessProof) (Decision, error) {
	file, err := g.repo.GetByFileID(ctx, fileID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrFileNotFound) {
			return Decision{Status: DecisionNotFound}, nil
		}
		return Decision{}, err
	}
	if file.Tombstoned {
		return Decision{Status: DecisionNotFound}, nil
	}

	if file.LinkExpiresAt > 0 && g.now().Unix() >= file.LinkExpiresAt {
		return Decision{Status: DecisionLinkExpired}, nil
	}

	if !g.PasswordSatisfied(file, proof) {
		if proof.Password == "" && proof.ViewToken == "" {
			return denied(ReasonPasswordRequired), nil
		}
		return denied(ReasonIncorrectPassword), nil
	}

	entitled, err := g.chain.HasAccess(ctx, fileID, requester)
	if err != nil {
		// Fail closed: an unreachable chain never grants access.
		g.logger.Warn("entitlement check unavailable",
			zap.String("file_id", fileID),
			zap.Error(err),
		)
		return denied(ReasonAccessUnverifiable), nil
	}
	if !entitled {
		return denied(ReasonNotEntitled), nil
	}

	terms, err := g.chain.GetFile(ctx, fileID)
	if err != nil {
		g.logger.Warn("on-chain terms unavailable",
			zap.String("file_id", fileID),
			zap.Error(err),
		)
		return denied(ReasonAccessUnverifiable), nil
	}
	if !terms.Active {
		return denied(ReasonInactive), nil
	}
	if g.now().Unix() >= terms.ExpiryTime {
		return denied(ReasonExpired), nil
	}

	return granted(), nil
}

// PasswordSatisfied reports whether the proof passes the password gate.
// Files without a share password always pass.
func (g *AccessGate) PasswordSatisfied(file *FileRecord, proof AccessProof) bool {
	if file.SharePasswordHash == "" {
		return true
	}
	if proof.ViewToken != "" && g.tokens.Validate(proof.ViewToken, file.FileID) {
		return true
	}
	if proof.Password != "" && filecrypto.VerifyPassword(proof.Password, file.SharePasswordHash) {
		return true
	}
	return false
}

// VerifyPassword checks a share password and, when it matches, issues a
// short-lived view token bound to the file.
func (g *AccessGate) VerifyPassword(ctx context.Context, fileID, password string) (bool, string, error) {
	file, err := g.repo.GetByFileID(ctx, fileID)
	if err != nil {
		return false, "", err
	}
	if file.Tombstoned {
		return false, "", apperrors.New(apperrors.ErrFileNotFound)
	}

	if file.SharePasswordHash != "" && !filecrypto.VerifyPassword(password, file.SharePasswordHash) {
		return false, "", nil
	}

	token, err := g.tokens.Issue(fileID)
	if err != nil {
		return true, "", err
	}
	return true, token, nil
}
