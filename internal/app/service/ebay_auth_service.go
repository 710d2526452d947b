package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"github.com/myglasscase/glasscase/internal/app/repository"
	"github.com/myglasscase/glasscase/internal/infra/cache"
	"github.com/myglasscase/glasscase/internal/infra/prometheus"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	ErrEbayNotConfigured  = errors.New("ebay integration is not configured")
	ErrInvalidState       = errors.New("invalid oauth state")
	ErrAuthorizationError = errors.New("ebay authorization was not granted")
	ErrTokenExchange      = errors.New("failed to get ebay token")
	ErrTokenRefresh       = errors.New("ebay token refresh failed")
	ErrAuthWaitTimeout    = errors.New("timed out waiting for ebay authorization")
	ErrReauthRequired     = errors.New("ebay authentication required")
)

const (
	// MaxAuthWait bounds how long a client may block waiting for the OAuth popup.
	MaxAuthWait = 2 * time.Minute

	tokenRefreshWindow  = 5 * time.Minute
	defaultTokenLife    = 2 * time.Hour
	defaultRefreshBatch = 100
	maxRefreshBatches   = 20
	// refreshRetryBackoff keeps a rejected credential out of background passes.
	refreshRetryBackoff = time.Hour
)

// EbayScopes are the seller scopes requested when connecting an account.
var EbayScopes = []string{
	"https://api.ebay.com/oauth/api_scope/sell.inventory",
	"https://api.ebay.com/oauth/api_scope/sell.inventory.readonly",
	"https://api.ebay.com/oauth/api_scope/sell.fulfillment",
	"https://api.ebay.com/oauth/api_scope/sell.account.readonly",
}

// StateSigner binds OAuth state tokens to the user who requested them.
type StateSigner interface {
	Issue(userID uuid.UUID) (string, error)
	Verify(state string) (uuid.UUID, error)
}

// EbayAuthService manages the eBay OAuth connection of each user.
type EbayAuthService interface {
	AuthorizationURL(ctx context.Context, userID uuid.UUID) (*AuthorizationRequest, error)
	HandleCallback(ctx context.Context, input CallbackInput) (AuthOutcome, error)
	RefreshToken(ctx context.Context, userID uuid.UUID) (bool, error)
	RefreshExpiring(ctx context.Context, window time.Duration) (RefreshSummary, error)
	TokenSource(ctx context.Context, userID uuid.UUID) oauth2.TokenSource
	Status(ctx context.Context, userID uuid.UUID) (*EbayStatus, error)
	Disconnect(ctx context.Context, userID uuid.UUID) error
	WaitForAuthorization(ctx context.Context, userID uuid.UUID, state string, timeout time.Duration) (AuthOutcome, error)
	CancelAuthorization(ctx context.Context, userID uuid.UUID, state string) error
}

// EbayAuthConfig carries the OAuth application registration.
type EbayAuthConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURI is the RuName eBay redirects back through.
	RedirectURI string
	AuthURL     string
	TokenURL    string
	StateTTL    time.Duration
}

// AuthorizationRequest is what the client needs to open the consent popup.
type AuthorizationRequest struct {
	URL   string
	State string
}

// CallbackInput holds the query parameters eBay redirects with.
type CallbackInput struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// EbayStatus reports whether the user has a usable connection.
type EbayStatus struct {
	Connected bool
	ExpiresAt *time.Time
}

// RefreshSummary reports one background refresh pass.
type RefreshSummary struct {
	Checked   int
	Refreshed int
	Failed    int
}

type ebayAuthService struct {
	oauth    *oauth2.Config
	enabled  bool
	stateTTL time.Duration
	repo     repository.EbayCredentialRepository
	signer   StateSigner
	notifier AuthNotifier
	outcomes cache.Cacher
	logger   *zap.Logger
	now      func() time.Time
}

// NewEbayAuthService wires the OAuth flow. outcomes may be nil, in which case
// only waiters already subscribed when the callback lands see its outcome.
func NewEbayAuthService(
	cfg EbayAuthConfig,
	repo repository.EbayCredentialRepository,
	signer StateSigner,
	notifier AuthNotifier,
	outcomes cache.Cacher,
	logger *zap.Logger,
) EbayAuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewMemoryAuthNotifier()
	}
	stateTTL := cfg.StateTTL
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &ebayAuthService{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       EbayScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		enabled:  cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.RedirectURI != "",
		stateTTL: stateTTL,
		repo:     repo,
		signer:   signer,
		notifier: notifier,
		outcomes: outcomes,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *ebayAuthService) AuthorizationURL(_ context.Context, userID uuid.UUID) (*AuthorizationRequest, error) {
	if !s.enabled {
		return nil, ErrEbayNotConfigured
	}
	state, err := s.signer.Issue(userID)
	if err != nil {
		return nil, fmt.Errorf("issue oauth state: %w", err)
	}

	s.logger.Info("generated ebay authorization url", zap.String("user_id", userID.String()))
	return &AuthorizationRequest{URL: s.oauth.AuthCodeURL(state), State: state}, nil
}

// HandleCallback completes the flow for the user bound to input.State. Once the
// state is trusted every result, success or failure, is published to waiters.
func (s *ebayAuthService) HandleCallback(ctx context.Context, input CallbackInput) (AuthOutcome, error) {
	if !s.enabled {
		return AuthOutcome{}, ErrEbayNotConfigured
	}
	userID, err := s.signer.Verify(input.State)
	if err != nil {
		return AuthOutcome{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	if input.Error != "" {
		msg := input.Error
		if input.ErrorDescription != "" {
			msg = input.Error + ": " + input.ErrorDescription
		}
		outcome := AuthOutcome{Status: AuthFailed, Error: msg}
		s.publish(ctx, input.State, outcome)
		return outcome, fmt.Errorf("%w: %s", ErrAuthorizationError, msg)
	}

	if strings.TrimSpace(input.Code) == "" {
		outcome := AuthOutcome{Status: AuthFailed, Error: "missing authorization code"}
		s.publish(ctx, input.State, outcome)
		return outcome, fmt.Errorf("handle callback: %w: missing code", ErrInvalidInput)
	}

	token, err := s.oauth.Exchange(ctx, input.Code)
	if err != nil {
		s.logger.Error("ebay token exchange failed", zap.String("user_id", userID.String()), zap.Error(err))
		outcome := AuthOutcome{Status: AuthFailed, Error: ErrTokenExchange.Error()}
		s.publish(ctx, input.State, outcome)
		return outcome, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	cred := &model.EbayCredential{
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    s.expiry(token),
	}
	if err := s.repo.Upsert(ctx, cred); err != nil {
		outcome := AuthOutcome{Status: AuthFailed, Error: "failed to store credentials"}
		s.publish(ctx, input.State, outcome)
		return outcome, fmt.Errorf("store ebay credentials: %w", err)
	}

	s.logger.Info("ebay account connected", zap.String("user_id", userID.String()))
	expiresAt := cred.ExpiresAt
	outcome := AuthOutcome{Status: AuthConnected, ExpiresAt: &expiresAt}
	s.publish(ctx, input.State, outcome)
	return outcome, nil
}

// RefreshToken refreshes the user's access token when it lapses within five minutes.
func (s *ebayAuthService) RefreshToken(ctx context.Context, userID uuid.UUID) (bool, error) {
	if !s.enabled {
		return false, ErrEbayNotConfigured
	}
	cred, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load ebay credentials: %w", err)
	}
	return s.refresh(ctx, cred, tokenRefreshWindow)
}

// RefreshExpiring refreshes every credential that lapses within window. A
// rejected credential is marked failed, which drops it from the following
// queries, so each batch reaches rows the previous one did not.
func (s *ebayAuthService) RefreshExpiring(ctx context.Context, window time.Duration) (RefreshSummary, error) {
	var summary RefreshSummary
	if !s.enabled {
		return summary, nil
	}

	for batch := 0; batch < maxRefreshBatches; batch++ {
		now := s.now()
		creds, err := s.repo.ListExpiringBefore(ctx, now.Add(window), now.Add(-refreshRetryBackoff), defaultRefreshBatch)
		if err != nil {
			return summary, fmt.Errorf("list expiring ebay credentials: %w", err)
		}

		settled := 0
		for i := range creds {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Checked++
			refreshed, err := s.refresh(ctx, &creds[i], window)
			switch {
			case err != nil:
				summary.Failed++
				s.logger.Warn("background ebay refresh failed",
					zap.String("user_id", creds[i].UserID.String()),
					zap.Error(err))
				if ctx.Err() != nil {
					return summary, ctx.Err()
				}
				if err := s.repo.MarkRefreshFailed(ctx, creds[i].UserID, now); err != nil {
					s.logger.Warn("failed to record ebay refresh failure",
						zap.String("user_id", creds[i].UserID.String()),
						zap.Error(err))
					continue
				}
				settled++
			case refreshed:
				summary.Refreshed++
				settled++
			}
		}

		// A short batch was the last one; an unsettled row would be listed again.
		if len(creds) < defaultRefreshBatch || settled < len(creds) {
			break
		}
	}
	return summary, nil
}

// TokenSource returns the user's access token, refreshing and storing it first
// when it lapses within five minutes.
func (s *ebayAuthService) TokenSource(ctx context.Context, userID uuid.UUID) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &credentialTokenSource{ctx: ctx, svc: s, userID: userID})
}

type credentialTokenSource struct {
	ctx    context.Context
	svc    *ebayAuthService
	userID uuid.UUID
}

func (ts *credentialTokenSource) Token() (*oauth2.Token, error) {
	if !ts.svc.enabled {
		return nil, ErrEbayNotConfigured
	}
	cred, err := ts.svc.repo.GetByUser(ts.ctx, ts.userID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}
		return nil, fmt.Errorf("load ebay credentials: %w", err)
	}
	if _, err := ts.svc.refresh(ts.ctx, cred, tokenRefreshWindow); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}
	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       cred.ExpiresAt,
	}, nil
}

func (s *ebayAuthService) refresh(ctx context.Context, cred *model.EbayCredential, window time.Duration) (bool, error) {
	current := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.ExpiresAt,
	}
	if cred.ExpiresAt.Sub(s.now()) > window {
		prometheus.EbayTokenRefreshes.WithLabelValues("skipped").Inc()
		return false, nil
	}

	refresher := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := oauth2.ReuseTokenSourceWithExpiry(current, refresher, window).Token()
	if err != nil {
		prometheus.EbayTokenRefreshes.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	if token.AccessToken == cred.AccessToken {
		prometheus.EbayTokenRefreshes.WithLabelValues("skipped").Inc()
		return false, nil
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}
	expiresAt := s.expiry(token)
	if err := s.repo.UpdateTokens(ctx, cred.UserID, token.AccessToken, refreshToken, expiresAt); err != nil {
		prometheus.EbayTokenRefreshes.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("store refreshed ebay token: %w", err)
	}

	cred.AccessToken = token.AccessToken
	cred.RefreshToken = refreshToken
	cred.ExpiresAt = expiresAt

	prometheus.EbayTokenRefreshes.WithLabelValues("refreshed").Inc()
	s.logger.Info("ebay token refreshed", zap.String("user_id", cred.UserID.String()))
	return true, nil
}

func (s *ebayAuthService) Status(ctx context.Context, userID uuid.UUID) (*EbayStatus, error) {
	cred, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return &EbayStatus{}, nil
		}
		return nil, fmt.Errorf("load ebay credentials: %w", err)
	}
	expiresAt := cred.ExpiresAt
	return &EbayStatus{Connected: cred.Connected(s.now()), ExpiresAt: &expiresAt}, nil
}

func (s *ebayAuthService) Disconnect(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("disconnect ebay: %w", err)
	}
	s.logger.Info("ebay account disconnected", zap.String("user_id", userID.String()))
	return nil
}

// WaitForAuthorization blocks until the outcome for state is published, ctx is
// done, or timeout (capped at MaxAuthWait) elapses.
func (s *ebayAuthService) WaitForAuthorization(ctx context.Context, userID uuid.UUID, state string, timeout time.Duration) (AuthOutcome, error) {
	if err := s.checkState(userID, state); err != nil {
		return AuthOutcome{}, err
	}
	if timeout <= 0 || timeout > MaxAuthWait {
		timeout = MaxAuthWait
	}

	sub, err := s.notifier.Subscribe(state)
	if err != nil {
		return AuthOutcome{}, err
	}
	defer sub.Close()

	// The callback may have landed before the subscription existed.
	if s.outcomes != nil {
		var outcome AuthOutcome
		if err := s.outcomes.Get(ctx, cache.KeyEbayAuthOutcome(stateDigest(state)), &outcome); err == nil {
			return outcome, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-sub.C():
		return outcome, nil
	case <-timer.C:
		return AuthOutcome{}, ErrAuthWaitTimeout
	case <-ctx.Done():
		return AuthOutcome{}, ctx.Err()
	}
}

// CancelAuthorization releases every waiter on state with a cancelled outcome.
func (s *ebayAuthService) CancelAuthorization(ctx context.Context, userID uuid.UUID, state string) error {
	if err := s.checkState(userID, state); err != nil {
		return err
	}
	return s.publish(ctx, state, AuthOutcome{Status: AuthCancelled})
}

func (s *ebayAuthService) checkState(userID uuid.UUID, state string) error {
	owner, err := s.signer.Verify(state)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if owner != userID {
		return ErrInvalidState
	}
	return nil
}

func (s *ebayAuthService) publish(ctx context.Context, state string, outcome AuthOutcome) error {
	if s.outcomes != nil {
		if err := s.outcomes.Set(ctx, cache.KeyEbayAuthOutcome(stateDigest(state)), outcome, s.stateTTL); err != nil {
			s.logger.Warn("failed to record auth outcome", zap.Error(err))
		}
	}
	if err := s.notifier.Notify(ctx, state, outcome); err != nil {
		s.logger.Warn("failed to notify auth outcome", zap.Error(err))
		return err
	}
	return nil
}

func (s *ebayAuthService) expiry(token *oauth2.Token) time.Time {
	if token.Expiry.IsZero() {
		return s.now().Add(defaultTokenLife)
	}
	return token.Expiry.UTC()
}
