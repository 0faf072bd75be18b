// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package invite

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/lobby"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// DMChecker resolves a lobby on behalf of its active DM.
// *lobby.Service implements it.
type DMChecker interface {
	RequireActiveDM(ctx context.Context, lobbyID ulid.ULID, account *auth.Account) (*lobby.Lobby, error)
}

// AccountLookup finds accounts by normalized email.
type AccountLookup interface {
	GetByEmail(ctx context.Context, email string) (*auth.Account, error)
}

// Issued is the result of issuing an invite. Token is the raw secret and is
// only ever returned here.
type Issued struct {
	Invite    *Invite
	Member    *lobby.Member
	Token     string
	URL       string
	ExpiresIn time.Duration
}

// Service issues and redeems email invites.
type Service struct {
	dm       DMChecker
	accounts AccountLookup
	members  lobby.MemberRepository
	invites  Repository
	tx       lobby.Transactor
	baseURL  string
	now      func() time.Time
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock replaces the wall clock used for expiry.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithBaseURL sets the origin prefixed to invite URLs. Defaults to "",
// which yields relative URLs.
func WithBaseURL(base string) ServiceOption {
	return func(s *Service) { s.baseURL = strings.TrimRight(base, "/") }
}

// NewService creates a new Service.
func NewService(dm DMChecker, accounts AccountLookup, members lobby.MemberRepository, invites Repository, tx lobby.Transactor, opts ...ServiceOption) (*Service, error) {
	switch {
	case dm == nil:
		return nil, oops.Code("INVITE_INVALID_SERVICE").Errorf("DM checker is required")
	case accounts == nil:
		return nil, oops.Code("INVITE_INVALID_SERVICE").Errorf("account lookup is required")
	case members == nil:
		return nil, oops.Code("INVITE_INVALID_SERVICE").Errorf("member repository is required")
	case invites == nil:
		return nil, oops.Code("INVITE_INVALID_SERVICE").Errorf("invite repository is required")
	case tx == nil:
		return nil, oops.Code("INVITE_INVALID_SERVICE").Errorf("transactor is required")
	}

	s := &Service{
		dm:       dm,
		accounts: accounts,
		members:  members,
		invites:  invites,
		tx:       tx,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.now == nil || s.logger == nil {
		return nil, oops.Code("INVITE_INVALID_SERVICE").Errorf("clock and logger are required")
	}
	return s, nil
}

// CreateEmailInvite invites targetEmail to the lobby. The issuer must be the
// lobby's active DM and no account may already own the email. Reissuing to
// the same address resets its pending member row and revokes earlier
// unused invites, so at most one row and one redeemable invite exist per
// (lobby, email).
func (s *Service) CreateEmailInvite(ctx context.Context, lobbyID ulid.ULID, issuer *auth.Account, targetEmail string) (*Issued, error) {
	if _, err := s.dm.RequireActiveDM(ctx, lobbyID, issuer); err != nil {
		return nil, err
	}

	email := auth.NormalizeEmail(targetEmail)
	if email == "" {
		return nil, oops.Code("INVITE_INVALID_EMAIL").Wrapf(errutil.ErrValidation, "target email cannot be empty")
	}

	_, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, oops.Code("INVITE_ACCOUNT_EXISTS").
			With("lobby_id", lobbyID.String()).
			Wrapf(errutil.ErrConflict, "an account already uses this email")
	case !errors.Is(err, errutil.ErrNotFound):
		return nil, oops.Code("INVITE_CREATE_FAILED").With("operation", "check existing account").Wrap(err)
	}

	token, tokenHash, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	pending, err := lobby.NewPendingMember(lobbyID, email, now)
	if err != nil {
		return nil, err
	}
	inv := &Invite{
		ID:          ulid.Make(),
		LobbyID:     lobbyID,
		CreatedBy:   issuer.ID,
		TargetEmail: email,
		TokenHash:   tokenHash,
		ExpiresAt:   now.Add(TTL),
		CreatedAt:   now,
	}

	// Invite rows are locked before the member row, in the same order as
	// RedeemInvite, so a reissue racing a redemption cannot deadlock.
	var member *lobby.Member
	var superseded int64
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		superseded, err = s.invites.RevokePending(ctx, lobbyID, email, now)
		if err != nil {
			return oops.With("operation", "revoke pending invites").Wrap(err)
		}
		member, err = s.members.UpsertInvited(ctx, pending)
		if err != nil {
			return oops.With("operation", "upsert invited member").Wrap(err)
		}
		if err := s.invites.Create(ctx, inv); err != nil {
			return oops.With("operation", "create invite").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return nil, oops.With("lobby_id", lobbyID.String()).Wrap(err)
	}

	s.logger.InfoContext(ctx, "invite issued",
		"invite_id", inv.ID.String(),
		"lobby_id", lobbyID.String(),
		"issuer_id", issuer.ID.String(),
		"superseded", superseded)

	return &Issued{
		Invite:    inv,
		Member:    member,
		Token:     token,
		URL:       s.acceptURL(token),
		ExpiresIn: TTL,
	}, nil
}

func (s *Service) acceptURL(token string) string {
	return s.baseURL + AcceptPath + "?token=" + url.QueryEscape(token)
}

// RedeemInvite turns the pending membership behind token into an active
// membership for account. Unknown tokens fail with errutil.ErrNotFound;
// used, superseded, and expired invites with errutil.ErrGone; an account
// whose email differs from the invite target with errutil.ErrForbidden.
// Marking the invite used and activating the member commit together, and
// only one of two concurrent redemptions can succeed.
func (s *Service) RedeemInvite(ctx context.Context, token string, account *auth.Account) (*lobby.Member, error) {
	if token == "" {
		return nil, notFound()
	}

	inv, err := s.invites.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, errutil.ErrNotFound) {
			return nil, notFound()
		}
		return nil, oops.Code("INVITE_REDEEM_FAILED").With("operation", "get invite by token hash").Wrap(err)
	}

	now := s.now().UTC()
	if err := checkRedeemable(inv, now); err != nil {
		return nil, err
	}
	if auth.NormalizeEmail(account.Email) != inv.TargetEmail {
		return nil, oops.Code("INVITE_EMAIL_MISMATCH").
			With("invite_id", inv.ID.String()).
			With("account_id", account.ID.String()).
			Wrapf(errutil.ErrForbidden, "this invite was issued to a different email")
	}

	var member *lobby.Member
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		marked, err := s.invites.MarkUsed(ctx, inv.ID, now)
		if err != nil {
			return oops.With("operation", "mark invite used").Wrap(err)
		}
		if !marked {
			return s.lostRedemption(ctx, inv, now)
		}

		pending, err := s.members.GetByEmail(ctx, inv.LobbyID, inv.TargetEmail)
		if errors.Is(err, errutil.ErrNotFound) {
			return gone("INVITE_MEMBERSHIP_GONE", inv, "pending membership no longer exists")
		}
		if err != nil {
			return oops.With("operation", "get pending member").Wrap(err)
		}
		if !pending.IsPending() {
			return gone("INVITE_MEMBERSHIP_GONE", inv, "pending membership no longer exists")
		}

		member, err = s.members.Activate(ctx, pending.ID, account.ID, now)
		if err != nil {
			return oops.With("operation", "activate member").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return nil, oops.With("invite_id", inv.ID.String()).With("lobby_id", inv.LobbyID.String()).Wrap(err)
	}

	s.logger.InfoContext(ctx, "invite redeemed",
		"invite_id", inv.ID.String(),
		"lobby_id", inv.LobbyID.String(),
		"account_id", account.ID.String())
	return member, nil
}

// lostRedemption explains why MarkUsed matched no row: a concurrent
// redemption used the invite or a concurrent reissue revoked it.
func (s *Service) lostRedemption(ctx context.Context, inv *Invite, now time.Time) error {
	current, err := s.invites.GetByTokenHash(ctx, inv.TokenHash)
	if err == nil {
		if goneErr := checkRedeemable(current, now); goneErr != nil {
			return goneErr
		}
	}
	return gone("INVITE_ALREADY_USED", inv, "invite has already been used")
}

func checkRedeemable(inv *Invite, now time.Time) error {
	switch {
	case inv.IsUsed():
		return gone("INVITE_ALREADY_USED", inv, "invite has already been used")
	case inv.IsRevoked():
		return gone("INVITE_SUPERSEDED", inv, "invite was superseded by a newer invite")
	case inv.IsExpiredAt(now):
		return gone("INVITE_EXPIRED", inv, "invite has expired")
	}
	return nil
}

func notFound() error {
	return oops.Code("INVITE_NOT_FOUND").Wrapf(errutil.ErrNotFound, "invite not found")
}

func gone(code string, inv *Invite, msg string) error {
	return oops.Code(code).With("invite_id", inv.ID.String()).Wrapf(errutil.ErrGone, "%s", msg)
}
