package service

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"github.com/myglasscase/glasscase/internal/app/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type mockEbayListingRepository struct {
	createFn func(ctx context.Context, listing *model.EbayListing) error
	listFn   func(ctx context.Context, userID uuid.UUID) ([]model.EbayListing, error)
}

func (m *mockEbayListingRepository) Create(ctx context.Context, listing *model.EbayListing) error {
	if m.createFn != nil {
		return m.createFn(ctx, listing)
	}
	return nil
}

func (m *mockEbayListingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.EbayListing, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

type staticTokens struct {
	token *oauth2.Token
	err   error
}

func (s staticTokens) TokenSource(context.Context, uuid.UUID) oauth2.TokenSource {
	if s.err != nil {
		return errTokenSource{s.err}
	}
	return oauth2.StaticTokenSource(s.token)
}

type errTokenSource struct{ err error }

func (e errTokenSource) Token() (*oauth2.Token, error) { return nil, e.err }

// capturedCall is what the fake Trading API saw.
type capturedCall struct {
	header http.Header
	body   []byte
}

func newTradingServer(t *testing.T, status int, response string) (*httptest.Server, *capturedCall) {
	t.Helper()
	seen := &capturedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.header = r.Header.Clone()
		seen.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

const tradingSuccess = `<?xml version="1.0" encoding="UTF-8"?>
<AddItemResponse xmlns="urn:ebay:apis:eBLBaseComponents">
  <Ack>Success</Ack>
  <ItemID>110552341234</ItemID>
</AddItemResponse>`

const tradingFailure = `<?xml version="1.0" encoding="UTF-8"?>
<AddFixedPriceItemResponse xmlns="urn:ebay:apis:eBLBaseComponents">
  <Ack>Failure</Ack>
  <Errors>
    <ShortMessage>Category not valid.</ShortMessage>
    <LongMessage>The category selected is not a leaf category.</LongMessage>
    <ErrorCode>87</ErrorCode>
    <SeverityCode>Error</SeverityCode>
  </Errors>
  <Errors>
    <ShortMessage>Minor issue.</ShortMessage>
    <SeverityCode>Warning</SeverityCode>
  </Errors>
</AddFixedPriceItemResponse>`

func ownedItems(owner, item uuid.UUID) *mockInventoryItemRepository {
	return &mockInventoryItemRepository{
		getFn: func(ctx context.Context, ownerID, itemID uuid.UUID) (*model.InventoryItem, error) {
			if ownerID != owner || itemID != item {
				return nil, repository.ErrItemNotFound
			}
			return &model.InventoryItem{ID: item, UserID: owner, Name: "Jadeite cup"}, nil
		},
	}
}

func auctionInput(item uuid.UUID) ListingInput {
	return ListingInput{
		ItemID:      item,
		Title:       "Fire-King Jadeite Restaurant Ware Cup",
		Description: "Vintage cup & saucer <mint>",
		CategoryID:  "870",
		StartPrice:  19.5,
		Condition:   "Used",
		Photos:      []string{"https://cdn.example.com/1.jpg"},
	}
}

func newTestListingService(endpoint string, tokens TokenSourcer, items repository.InventoryItemRepository, listings repository.EbayListingRepository) EbayListingService {
	return NewEbayListingService(EbayTradingConfig{
		Endpoint: endpoint,
		DevID:    "dev",
		AppID:    "client",
		CertID:   "secret",
	}, tokens, items, listings, nil)
}

func TestEbayListingService_CreateAuction(t *testing.T) {
	owner, item := uuid.New(), uuid.New()
	srv, seen := newTradingServer(t, http.StatusOK, tradingSuccess)
	var stored *model.EbayListing
	listings := &mockEbayListingRepository{
		createFn: func(ctx context.Context, listing *model.EbayListing) error {
			stored = listing
			return nil
		},
	}
	svc := newTestListingService(srv.URL, staticTokens{token: &oauth2.Token{AccessToken: "user-token"}}, ownedItems(owner, item), listings)

	listing, err := svc.CreateListing(context.Background(), owner, auctionInput(item))
	require.NoError(t, err)

	assert.Same(t, stored, listing)
	assert.Equal(t, "110552341234", listing.EbayItemID)
	assert.Equal(t, "https://www.ebay.com/itm/110552341234", listing.ListingURL)
	assert.Equal(t, model.ListingTypeAuction, listing.ListingType)
	assert.Equal(t, model.EbayListingStatusActive, listing.Status)
	assert.Equal(t, item, listing.InventoryItemID)

	assert.Equal(t, "AddItem", seen.header.Get("X-EBAY-API-CALL-NAME"))
	assert.Equal(t, "user-token", seen.header.Get("X-EBAY-API-IAF-TOKEN"))
	assert.Equal(t, "Bearer user-token", seen.header.Get("Authorization"))
	assert.Equal(t, "967", seen.header.Get("X-EBAY-API-COMPATIBILITY-LEVEL"))
	assert.Equal(t, "0", seen.header.Get("X-EBAY-API-SITEID"))

	var sent tradingRequest
	require.NoError(t, xml.Unmarshal(seen.body, &sent))
	assert.Equal(t, "AddItemRequest", sent.XMLName.Local)
	assert.Equal(t, "Vintage cup & saucer <mint>", sent.Item.Description)
	assert.Equal(t, "19.50", sent.Item.StartPrice.Value)
	assert.Equal(t, "USD", sent.Item.StartPrice.CurrencyID)
	assert.Equal(t, "Days_7", sent.Item.ListingDuration)
	assert.Equal(t, "3000", sent.Item.ConditionID)
	require.NotNil(t, sent.Item.PictureDetails)
	assert.Equal(t, []string{"https://cdn.example.com/1.jpg"}, sent.Item.PictureDetails.PictureURL)
}

func TestEbayListingService_BuyItNowListsFixedPrice(t *testing.T) {
	owner, item := uuid.New(), uuid.New()
	srv, seen := newTradingServer(t, http.StatusOK, tradingSuccess)
	svc := newTestListingService(srv.URL, staticTokens{token: &oauth2.Token{AccessToken: "t"}}, ownedItems(owner, item), &mockEbayListingRepository{})

	input := auctionInput(item)
	input.BuyItNowPrice = floatPtr(45)
	input.Condition = "new"
	listing, err := svc.CreateListing(context.Background(), owner, input)
	require.NoError(t, err)
	assert.Equal(t, model.ListingTypeFixedPrice, listing.ListingType)

	var sent tradingRequest
	require.NoError(t, xml.Unmarshal(seen.body, &sent))
	assert.Equal(t, "AddFixedPriceItem", seen.header.Get("X-EBAY-API-CALL-NAME"))
	assert.Equal(t, "AddFixedPriceItemRequest", sent.XMLName.Local)
	assert.Equal(t, "45.00", sent.Item.StartPrice.Value)
	assert.Equal(t, "GTC", sent.Item.ListingDuration)
	assert.Equal(t, "1000", sent.Item.ConditionID)
}

func TestEbayListingService_RefreshesExpiredTokenOnDemand(t *testing.T) {
	owner, item := uuid.New(), uuid.New()
	ts := newTokenServer(t)
	srv, seen := newTradingServer(t, http.StatusOK, tradingSuccess)
	creds := &mockEbayCredentialRepository{
		getByUserFn: func(ctx context.Context, userID uuid.UUID) (*model.EbayCredential, error) {
			return &model.EbayCredential{UserID: owner, AccessToken: "expired", RefreshToken: "refresh-1", ExpiresAt: time.Now().Add(-time.Hour)}, nil
		},
	}
	auth := newTestEbayService(t, creds, ts.URL)
	svc := newTestListingService(srv.URL, auth, ownedItems(owner, item), &mockEbayListingRepository{})

	_, err := svc.CreateListing(context.Background(), owner, auctionInput(item))
	require.NoError(t, err)
	assert.Equal(t, "access-2", seen.header.Get("X-EBAY-API-IAF-TOKEN"))
	assert.EqualValues(t, 1, ts.hits.Load())
}

func TestEbayListingService_ReauthRequired(t *testing.T) {
	owner, item := uuid.New(), uuid.New()
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()
	svc := newTestListingService(srv.URL, staticTokens{err: ErrReauthRequired}, ownedItems(owner, item), &mockEbayListingRepository{})

	_, err := svc.CreateListing(context.Background(), owner, auctionInput(item))
	assert.ErrorIs(t, err, ErrReauthRequired)
	assert.False(t, called)
}

func TestEbayListingService_RejectedByEbay(t *testing.T) {
	owner, item := uuid.New(), uuid.New()
	srv, _ := newTradingServer(t, http.StatusOK, tradingFailure)
	stored := false
	listings := &mockEbayListingRepository{
		createFn: func(ctx context.Context, listing *model.EbayListing) error {
			stored = true
			return nil
		},
	}
	svc := newTestListingService(srv.URL, staticTokens{token: &oauth2.Token{AccessToken: "t"}}, ownedItems(owner, item), listings)

	_, err := svc.CreateListing(context.Background(), owner, auctionInput(item))
	require.ErrorIs(t, err, ErrListingRejected)
	assert.Contains(t, err.Error(), "not a leaf category")
	assert.NotContains(t, err.Error(), "Minor issue")
	assert.False(t, stored)
}

func TestEbayListingService_TradingAPIUnavailable(t *testing.T) {
	owner, item := uuid.New(), uuid.New()
	srv, _ := newTradingServer(t, http.StatusServiceUnavailable, "busy")
	svc := newTestListingService(srv.URL, staticTokens{token: &oauth2.Token{AccessToken: "t"}}, ownedItems(owner, item), &mockEbayListingRepository{})

	_, err := svc.CreateListing(context.Background(), owner, auctionInput(item))
	assert.ErrorIs(t, err, ErrListingFailed)
}

func TestEbayListingService_ItemMustBelongToUser(t *testing.T) {
	owner, item := uuid.New(), uuid.New()
	svc := newTestListingService("http://unused", staticTokens{token: &oauth2.Token{AccessToken: "t"}}, ownedItems(owner, item), &mockEbayListingRepository{})

	_, err := svc.CreateListing(context.Background(), uuid.New(), auctionInput(item))
	assert.ErrorIs(t, err, repository.ErrItemNotFound)
}

func TestEbayListingService_ValidatesInput(t *testing.T) {
	item := uuid.New()
	long := make([]byte, 81)
	for i := range long {
		long[i] = 'x'
	}
	cases := map[string]func(in *ListingInput){
		"missing item":      func(in *ListingInput) { in.ItemID = uuid.Nil },
		"blank title":       func(in *ListingInput) { in.Title = "  " },
		"long title":        func(in *ListingInput) { in.Title = string(long) },
		"missing category":  func(in *ListingInput) { in.CategoryID = "" },
		"zero price":        func(in *ListingInput) { in.StartPrice = 0 },
		"negative bin":      func(in *ListingInput) { in.BuyItNowPrice = floatPtr(-1) },
		"negative shipping": func(in *ListingInput) { in.ShippingCost = floatPtr(-2) },
		"bad duration":      func(in *ListingInput) { in.DurationDays = 4 },
	}
	svc := newTestListingService("http://unused", staticTokens{token: &oauth2.Token{AccessToken: "t"}}, &mockInventoryItemRepository{}, &mockEbayListingRepository{})

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := auctionInput(item)
			mutate(&input)
			_, err := svc.CreateListing(context.Background(), uuid.New(), input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestEbayListingService_ListListings(t *testing.T) {
	owner := uuid.New()
	boom := errors.New("db down")
	svc := newTestListingService("http://unused", nil, nil, &mockEbayListingRepository{
		listFn: func(ctx context.Context, userID uuid.UUID) ([]model.EbayListing, error) {
			if userID != owner {
				return nil, boom
			}
			return []model.EbayListing{{EbayItemID: "1"}}, nil
		},
	})

	listings, err := svc.ListListings(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, listings, 1)

	_, err = svc.ListListings(context.Background(), uuid.New())
	assert.ErrorIs(t, err, boom)
}

func TestConditionID(t *testing.T) {
	assert.Equal(t, "1000", ConditionID("New"))
	assert.Equal(t, "7000", ConditionID(" for parts or not working "))
	assert.Equal(t, "3000", ConditionID("Excellent"))
}
