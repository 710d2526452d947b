package service

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"github.com/myglasscase/glasscase/internal/app/repository"
	"github.com/myglasscase/glasscase/internal/infra/prometheus"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	ErrListingRejected = errors.New("ebay rejected the listing")
	ErrListingFailed   = errors.New("failed to create ebay listing")
)

const (
	tradingNamespace     = "urn:ebay:apis:eBLBaseComponents"
	maxTitleLength       = 80
	maxListingPhotos     = 12
	defaultAuctionDays   = 7
	defaultConditionID   = "3000"
	tradingResponseLimit = 1 << 20
)

var auctionDurations = map[int]bool{1: true, 3: true, 5: true, 7: true, 10: true}

var conditionIDs = map[string]string{
	"new":                      "1000",
	"used":                     "3000",
	"for parts or not working": "7000",
}

// TokenSourcer hands out a token source for one user's eBay account.
type TokenSourcer interface {
	TokenSource(ctx context.Context, userID uuid.UUID) oauth2.TokenSource
}

// ListingInput describes one inventory item to list.
type ListingInput struct {
	ItemID      uuid.UUID
	Title       string
	Description string
	CategoryID  string
	StartPrice  float64
	// BuyItNowPrice turns the listing into a fixed-price listing at that price.
	BuyItNowPrice  *float64
	DurationDays   int
	Condition      string
	ShippingCost   *float64
	PaymentMethods []string
	Photos         []string
}

// EbayListingService lists inventory items on eBay through the Trading API.
type EbayListingService interface {
	CreateListing(ctx context.Context, userID uuid.UUID, input ListingInput) (*model.EbayListing, error)
	ListListings(ctx context.Context, userID uuid.UUID) ([]model.EbayListing, error)
}

// EbayTradingConfig addresses the Trading API for the registered application.
type EbayTradingConfig struct {
	Endpoint           string
	DevID              string
	AppID              string
	CertID             string
	SiteID             string
	CompatibilityLevel string
	// ItemURLBase is prefixed to the eBay item id to build the public listing URL.
	ItemURLBase string
}

type ebayListingService struct {
	cfg      EbayTradingConfig
	tokens   TokenSourcer
	items    repository.InventoryItemRepository
	listings repository.EbayListingRepository
	logger   *zap.Logger
}

// NewEbayListingService wires the Trading API client.
func NewEbayListingService(
	cfg EbayTradingConfig,
	tokens TokenSourcer,
	items repository.InventoryItemRepository,
	listings repository.EbayListingRepository,
	logger *zap.Logger,
) EbayListingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SiteID == "" {
		cfg.SiteID = "0"
	}
	if cfg.CompatibilityLevel == "" {
		cfg.CompatibilityLevel = "967"
	}
	if cfg.ItemURLBase == "" {
		cfg.ItemURLBase = "https://www.ebay.com/itm/"
	}
	return &ebayListingService{
		cfg:      cfg,
		tokens:   tokens,
		items:    items,
		listings: listings,
		logger:   logger,
	}
}

func (s *ebayListingService) CreateListing(ctx context.Context, userID uuid.UUID, input ListingInput) (*model.EbayListing, error) {
	if err := checkListingInput(&input); err != nil {
		return nil, err
	}
	if _, err := s.items.GetLiveByOwner(ctx, userID, input.ItemID); err != nil {
		return nil, fmt.Errorf("load listed item: %w", err)
	}

	token, err := s.tokens.TokenSource(ctx, userID).Token()
	if err != nil {
		return nil, err
	}

	req := buildTradingRequest(input)
	itemID, err := s.call(ctx, token, req)
	if err != nil {
		prometheus.EbayListings.WithLabelValues(listingOutcome(err)).Inc()
		s.logger.Warn("ebay listing failed",
			zap.String("user_id", userID.String()),
			zap.String("item_id", input.ItemID.String()),
			zap.Error(err))
		return nil, err
	}

	listing := &model.EbayListing{
		UserID:          userID,
		InventoryItemID: input.ItemID,
		EbayItemID:      itemID,
		ListingURL:      strings.TrimRight(s.cfg.ItemURLBase, "/") + "/" + itemID,
		ListingType:     req.Item.ListingType,
		Title:           input.Title,
		StartPrice:      input.StartPrice,
		BuyItNowPrice:   input.BuyItNowPrice,
		Status:          model.EbayListingStatusActive,
	}
	if err := s.listings.Create(ctx, listing); err != nil {
		// The item is live on eBay; the id is logged so it can be reconciled.
		s.logger.Error("failed to store ebay listing",
			zap.String("user_id", userID.String()),
			zap.String("ebay_item_id", itemID),
			zap.Error(err))
		return nil, fmt.Errorf("store ebay listing: %w", err)
	}

	prometheus.EbayListings.WithLabelValues("created").Inc()
	s.logger.Info("ebay listing created",
		zap.String("user_id", userID.String()),
		zap.String("ebay_item_id", itemID),
		zap.String("listing_type", listing.ListingType))
	return listing, nil
}

func (s *ebayListingService) ListListings(ctx context.Context, userID uuid.UUID) ([]model.EbayListing, error) {
	listings, err := s.listings.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list ebay listings: %w", err)
	}
	return listings, nil
}

// call posts one Trading API request and returns the new eBay item id.
func (s *ebayListingService) call(ctx context.Context, token *oauth2.Token, req *tradingRequest) (string, error) {
	body, err := xml.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrListingFailed, err)
	}
	body = append([]byte(xml.Header), body...)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrListingFailed, err)
	}
	httpReq.Header.Set("Content-Type", "text/xml")
	httpReq.Header.Set("X-EBAY-API-CALL-NAME", req.callName)
	httpReq.Header.Set("X-EBAY-API-COMPATIBILITY-LEVEL", s.cfg.CompatibilityLevel)
	httpReq.Header.Set("X-EBAY-API-SITEID", s.cfg.SiteID)
	httpReq.Header.Set("X-EBAY-API-DEV-NAME", s.cfg.DevID)
	httpReq.Header.Set("X-EBAY-API-APP-NAME", s.cfg.AppID)
	httpReq.Header.Set("X-EBAY-API-CERT-NAME", s.cfg.CertID)
	httpReq.Header.Set("X-EBAY-API-IAF-TOKEN", token.AccessToken)

	resp, err := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)).Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrListingFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, tradingResponseLimit))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrListingFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: trading api status %d", ErrListingFailed, resp.StatusCode)
	}

	var out tradingResponse
	if err := xml.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrListingFailed, err)
	}

	switch out.Ack {
	case "Success", "Warning":
		if out.ItemID == "" {
			return "", fmt.Errorf("%w: response carried no item id", ErrListingFailed)
		}
		return out.ItemID, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrListingRejected, out.errorMessage())
	}
}

func checkListingInput(input *ListingInput) error {
	input.Title = strings.TrimSpace(input.Title)
	input.CategoryID = strings.TrimSpace(input.CategoryID)

	switch {
	case input.ItemID == uuid.Nil:
		return fmt.Errorf("create listing: %w: item id is required", ErrInvalidInput)
	case input.Title == "":
		return fmt.Errorf("create listing: %w: title is required", ErrInvalidInput)
	case utf8.RuneCountInString(input.Title) > maxTitleLength:
		return fmt.Errorf("create listing: %w: title exceeds %d characters", ErrInvalidInput, maxTitleLength)
	case input.CategoryID == "":
		return fmt.Errorf("create listing: %w: category is required", ErrInvalidInput)
	case input.StartPrice <= 0:
		return fmt.Errorf("create listing: %w: start price must be positive", ErrInvalidInput)
	case input.BuyItNowPrice != nil && *input.BuyItNowPrice <= 0:
		return fmt.Errorf("create listing: %w: buy it now price must be positive", ErrInvalidInput)
	case input.ShippingCost != nil && *input.ShippingCost < 0:
		return fmt.Errorf("create listing: %w: shipping cost cannot be negative", ErrInvalidInput)
	case len(input.Photos) > maxListingPhotos:
		return fmt.Errorf("create listing: %w: at most %d photos", ErrInvalidInput, maxListingPhotos)
	}

	if input.BuyItNowPrice == nil {
		if input.DurationDays == 0 {
			input.DurationDays = defaultAuctionDays
		}
		if !auctionDurations[input.DurationDays] {
			return fmt.Errorf("create listing: %w: unsupported auction duration %d", ErrInvalidInput, input.DurationDays)
		}
	}
	return nil
}

func listingOutcome(err error) string {
	if errors.Is(err, ErrListingRejected) {
		return "rejected"
	}
	return "failed"
}

// ConditionID maps the inventory condition wording onto an eBay condition id.
func ConditionID(condition string) string {
	if id, ok := conditionIDs[strings.ToLower(strings.TrimSpace(condition))]; ok {
		return id
	}
	return defaultConditionID
}

type tradingRequest struct {
	XMLName      xml.Name
	Xmlns        string      `xml:"xmlns,attr"`
	ErrorLang    string      `xml:"ErrorLanguage"`
	WarningLevel string      `xml:"WarningLevel"`
	Item         tradingItem `xml:"Item"`

	callName string
}

type tradingItem struct {
	Title           string              `xml:"Title"`
	Description     string              `xml:"Description"`
	PrimaryCategory tradingCategory     `xml:"PrimaryCategory"`
	StartPrice      tradingAmount       `xml:"StartPrice"`
	ListingDuration string              `xml:"ListingDuration"`
	ListingType     string              `xml:"ListingType"`
	ConditionID     string              `xml:"ConditionID"`
	Country         string              `xml:"Country"`
	Currency        string              `xml:"Currency"`
	DispatchTimeMax int                 `xml:"DispatchTimeMax"`
	PaymentMethods  []string            `xml:"PaymentMethods,omitempty"`
	PictureDetails  *tradingPictures    `xml:"PictureDetails,omitempty"`
	ReturnPolicy    tradingReturnPolicy `xml:"ReturnPolicy"`
	ShippingDetails tradingShipping     `xml:"ShippingDetails"`
}

type tradingCategory struct {
	CategoryID string `xml:"CategoryID"`
}

type tradingAmount struct {
	CurrencyID string `xml:"currencyID,attr"`
	Value      string `xml:",chardata"`
}

type tradingPictures struct {
	PictureURL []string `xml:"PictureURL"`
}

type tradingReturnPolicy struct {
	ReturnsAcceptedOption    string `xml:"ReturnsAcceptedOption"`
	RefundOption             string `xml:"RefundOption"`
	ReturnsWithinOption      string `xml:"ReturnsWithinOption"`
	ShippingCostPaidByOption string `xml:"ShippingCostPaidByOption"`
}

type tradingShipping struct {
	ShippingType           string                  `xml:"ShippingType"`
	ShippingServiceOptions []tradingShippingOption `xml:"ShippingServiceOptions"`
}

type tradingShippingOption struct {
	ShippingServicePriority int           `xml:"ShippingServicePriority"`
	ShippingService         string        `xml:"ShippingService"`
	ShippingServiceCost     tradingAmount `xml:"ShippingServiceCost"`
}

type tradingResponse struct {
	Ack    string         `xml:"Ack"`
	ItemID string         `xml:"ItemID"`
	Errors []tradingError `xml:"Errors"`
}

type tradingError struct {
	ShortMessage string `xml:"ShortMessage"`
	LongMessage  string `xml:"LongMessage"`
	ErrorCode    string `xml:"ErrorCode"`
	SeverityCode string `xml:"SeverityCode"`
}

func (r tradingResponse) errorMessage() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if e.SeverityCode == "Warning" {
			continue
		}
		msg := e.LongMessage
		if msg == "" {
			msg = e.ShortMessage
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return "ack " + r.Ack
	}
	return strings.Join(msgs, "; ")
}

func usd(v float64) tradingAmount {
	return tradingAmount{CurrencyID: "USD", Value: strconv.FormatFloat(v, 'f', 2, 64)}
}

// buildTradingRequest lists at the buy it now price as a fixed-price item when
// one is given, otherwise as an auction starting at StartPrice.
func buildTradingRequest(input ListingInput) *tradingRequest {
	callName := "AddItem"
	item := tradingItem{
		Title:           input.Title,
		Description:     input.Description,
		PrimaryCategory: tradingCategory{CategoryID: input.CategoryID},
		StartPrice:      usd(input.StartPrice),
		ListingDuration: "Days_" + strconv.Itoa(input.DurationDays),
		ListingType:     model.ListingTypeAuction,
		ConditionID:     ConditionID(input.Condition),
		Country:         "US",
		Currency:        "USD",
		DispatchTimeMax: 3,
		PaymentMethods:  input.PaymentMethods,
		ReturnPolicy: tradingReturnPolicy{
			ReturnsAcceptedOption:    "ReturnsAccepted",
			RefundOption:             "MoneyBack",
			ReturnsWithinOption:      "Days_30",
			ShippingCostPaidByOption: "Buyer",
		},
	}
	if input.BuyItNowPrice != nil {
		callName = "AddFixedPriceItem"
		item.StartPrice = usd(*input.BuyItNowPrice)
		item.ListingDuration = "GTC"
		item.ListingType = model.ListingTypeFixedPrice
	}

	shipping := 0.0
	if input.ShippingCost != nil {
		shipping = *input.ShippingCost
	}
	item.ShippingDetails = tradingShipping{
		ShippingType: "Flat",
		ShippingServiceOptions: []tradingShippingOption{{
			ShippingServicePriority: 1,
			ShippingService:         "USPSPriority",
			ShippingServiceCost:     usd(shipping),
		}},
	}
	if len(input.Photos) > 0 {
		item.PictureDetails = &tradingPictures{PictureURL: input.Photos}
	}

	return &tradingRequest{
		XMLName:      xml.Name{Local: callName + "Request"},
		Xmlns:        tradingNamespace,
		ErrorLang:    "en_US",
		WarningLevel: "High",
		Item:         item,
		callName:     callName,
	}
}
