package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"github.com/myglasscase/glasscase/internal/app/service"
	"github.com/myglasscase/glasscase/internal/http/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSecret = []byte("handler-test-secret")

type mockShareLinkService struct {
	CreateFunc   func(ctx context.Context, ownerID uuid.UUID, input service.CreateShareLinkInput) (*model.ShareLink, error)
	ListFunc     func(ctx context.Context, ownerID uuid.UUID) ([]model.ShareLink, error)
	UpdateFunc   func(ctx context.Context, id, ownerID uuid.UUID, input service.UpdateShareLinkInput) (*model.ShareLink, error)
	DeleteFunc   func(ctx context.Context, id, ownerID uuid.UUID) error
	ResolveFunc  func(ctx context.Context, uniqueShareID string) (*model.ShareLink, error)
	ValidateFunc func(link *model.ShareLink, now time.Time) error
}

func (m *mockShareLinkService) CreateShareLink(ctx context.Context, ownerID uuid.UUID, input service.CreateShareLinkInput) (*model.ShareLink, error) {
	return m.CreateFunc(ctx, ownerID, input)
}

func (m *mockShareLinkService) ListShareLinks(ctx context.Context, ownerID uuid.UUID) ([]model.ShareLink, error) {
	return m.ListFunc(ctx, ownerID)
}

func (m *mockShareLinkService) UpdateShareLink(ctx context.Context, id, ownerID uuid.UUID, input service.UpdateShareLinkInput) (*model.ShareLink, error) {
	return m.UpdateFunc(ctx, id, ownerID, input)
}

func (m *mockShareLinkService) DeleteShareLink(ctx context.Context, id, ownerID uuid.UUID) error {
	return m.DeleteFunc(ctx, id, ownerID)
}

func (m *mockShareLinkService) Resolve(ctx context.Context, uniqueShareID string) (*model.ShareLink, error) {
	return m.ResolveFunc(ctx, uniqueShareID)
}

func (m *mockShareLinkService) Validate(link *model.ShareLink, now time.Time) error {
	return m.ValidateFunc(link, now)
}

type mockPublicCollectionService struct {
	GetFunc func(ctx context.Context, req service.ViewRequest) (*service.SharedCollection, error)
}

func (m *mockPublicCollectionService) GetSharedCollection(ctx context.Context, req service.ViewRequest) (*service.SharedCollection, error) {
	return m.GetFunc(ctx, req)
}

// mockEbayAuthService panics on methods a test does not stub.
type mockEbayAuthService struct {
	service.EbayAuthService
	AuthorizationURLFunc func(ctx context.Context, userID uuid.UUID) (*service.AuthorizationRequest, error)
	HandleCallbackFunc   func(ctx context.Context, input service.CallbackInput) (service.AuthOutcome, error)
	RefreshTokenFunc     func(ctx context.Context, userID uuid.UUID) (bool, error)
	StatusFunc           func(ctx context.Context, userID uuid.UUID) (*service.EbayStatus, error)
	DisconnectFunc       func(ctx context.Context, userID uuid.UUID) error
	WaitFunc             func(ctx context.Context, userID uuid.UUID, state string, timeout time.Duration) (service.AuthOutcome, error)
	CancelFunc           func(ctx context.Context, userID uuid.UUID, state string) error
}

func (m *mockEbayAuthService) AuthorizationURL(ctx context.Context, userID uuid.UUID) (*service.AuthorizationRequest, error) {
	return m.AuthorizationURLFunc(ctx, userID)
}

func (m *mockEbayAuthService) HandleCallback(ctx context.Context, input service.CallbackInput) (service.AuthOutcome, error) {
	return m.HandleCallbackFunc(ctx, input)
}

func (m *mockEbayAuthService) RefreshToken(ctx context.Context, userID uuid.UUID) (bool, error) {
	return m.RefreshTokenFunc(ctx, userID)
}

func (m *mockEbayAuthService) Status(ctx context.Context, userID uuid.UUID) (*service.EbayStatus, error) {
	return m.StatusFunc(ctx, userID)
}

func (m *mockEbayAuthService) Disconnect(ctx context.Context, userID uuid.UUID) error {
	return m.DisconnectFunc(ctx, userID)
}

func (m *mockEbayAuthService) WaitForAuthorization(ctx context.Context, userID uuid.UUID, state string, timeout time.Duration) (service.AuthOutcome, error) {
	return m.WaitFunc(ctx, userID, state, timeout)
}

func (m *mockEbayAuthService) CancelAuthorization(ctx context.Context, userID uuid.UUID, state string) error {
	return m.CancelFunc(ctx, userID, state)
}

type mockEbayListingService struct {
	CreateFunc func(ctx context.Context, userID uuid.UUID, input service.ListingInput) (*model.EbayListing, error)
	ListFunc   func(ctx context.Context, userID uuid.UUID) ([]model.EbayListing, error)
}

func (m *mockEbayListingService) CreateListing(ctx context.Context, userID uuid.UUID, input service.ListingInput) (*model.EbayListing, error) {
	return m.CreateFunc(ctx, userID, input)
}

func (m *mockEbayListingService) ListListings(ctx context.Context, userID uuid.UUID) ([]model.EbayListing, error) {
	return m.ListFunc(ctx, userID)
}

func testAuth() fiber.Handler {
	return middleware.Auth(middleware.AuthConfig{Secret: testSecret}, zap.NewNop())
}

func bearer(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return "Bearer " + token
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return body
}

func boolPtr(v bool) *bool        { return &v }
func strPtr(v string) *string     { return &v }
func floatPtr(v float64) *float64 { return &v }
