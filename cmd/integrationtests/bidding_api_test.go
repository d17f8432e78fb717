package integrationtests

import (
	"net/http"
	"sync"
	"testing"
	"time"

	bidding "auction-house/internal/biddingService"
	model "auction-house/internal/models"

	"github.com/stretchr/testify/require"
)

// PlaceBidHandler Tests
func TestPlaceBidHandler(t *testing.T) {
	tests := []struct {
		name       string
		request    any
		asSeller   bool
		closeFirst bool
		auctionID  string
		wantStatus int
		wantCode   string
	}{
		{name: "Valid_Bid", request: map[string]any{"bidAmount": 100}, wantStatus: http.StatusCreated},
		{name: "Invalid_JSON", request: "{bidAmount: 'missing quotes'}", wantStatus: http.StatusBadRequest, wantCode: "validation_error"},
		{name: "Too_Low", request: map[string]any{"bidAmount": 50}, wantStatus: http.StatusBadRequest, wantCode: "validation_error"},
		{name: "Seller_Bids", request: map[string]any{"bidAmount": 100}, asSeller: true, wantStatus: http.StatusForbidden, wantCode: "forbidden"},
		{name: "Auction_Closed", request: map[string]any{"bidAmount": 100}, closeFirst: true, wantStatus: http.StatusConflict, wantCode: "state_conflict"},
		{name: "Auction_Not_Found", request: map[string]any{"bidAmount": 100}, auctionID: "nonexistent", wantStatus: http.StatusNotFound, wantCode: "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := SetupTestApp()
			seller := SignupAndLogin(t, app.Router, "seller")
			bidder := SignupAndLogin(t, app.Router, "bidder")
			a := SeedOpenAuction(t, app, seller, bidding.AuctionInput{Kind: model.KindEnglish, StartingPrice: 50})

			if tt.closeFirst {
				_, w := ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+a.AuctionID+"/close", nil, seller.Cookies)
				require.Equal(t, http.StatusOK, w.Code)
			}
			auctionID := a.AuctionID
			if tt.auctionID != "" {
				auctionID = tt.auctionID
			}
			user := bidder
			if tt.asSeller {
				user = seller
			}

			resp, w := ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+auctionID+"/bids", tt.request, user.Cookies)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantStatus == http.StatusCreated {
				data := resp["data"].(map[string]any)
				require.Equal(t, a.AuctionID, data["auction_id"])
				require.Equal(t, bidder.ID, data["bidder_id"])
				require.Equal(t, 100.0, data["amount"])
				require.Equal(t, 100.0, data["current_price"])
				require.NotEmpty(t, data["bid_id"])

				_, err := time.Parse(time.RFC3339, data["created_at"].(string))
				require.NoError(t, err)
			} else {
				require.Equal(t, tt.wantCode, resp["error"])
			}
		})
	}
}

// Concurrent bids on one english auction: the price only rises and the
// final price is the highest accepted bid.
func TestPlaceBidHandler_ConcurrentBidders(t *testing.T) {
	app := SetupTestApp()
	seller := SignupAndLogin(t, app.Router, "seller")
	a := SeedOpenAuction(t, app, seller, bidding.AuctionInput{Kind: model.KindEnglish, StartingPrice: 10})

	bidders := make([]TestUser, 8)
	for i := range bidders {
		bidders[i] = SignupAndLogin(t, app.Router, "bidder"+string(rune('a'+i)))
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		highestSeen float64
	)
	for i, b := range bidders {
		wg.Add(1)
		go func(i int, b TestUser) {
			defer wg.Done()
			for step := 1; step <= 5; step++ {
				amount := float64(10 + step*10 + i)
				resp, w := ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+a.AuctionID+"/bids", map[string]any{"bidAmount": amount}, b.Cookies)
				if w.Code == http.StatusCreated {
					mu.Lock()
					if amount > highestSeen {
						highestSeen = amount
					}
					mu.Unlock()
					continue
				}
				// too low or lost the race; both are expected under contention
				code := resp["error"]
				if code != "validation_error" && code != "state_conflict" {
					t.Errorf("unexpected rejection %d %v", w.Code, resp)
				}
			}
		}(i, b)
	}
	wg.Wait()

	resp, w := ExecuteRequestAndParse(t, app.Router, http.MethodGet, "/auctions/"+a.AuctionID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, highestSeen, resp["data"].(map[string]any)["current_price"])
}

// GetBidsHandler Tests
func TestGetBidsHandler(t *testing.T) {
	tests := []struct {
		name      string
		kind      model.AuctionKind
		close     bool
		wantOwn   int
		wantOther int
	}{
		{name: "English_Shows_All", kind: model.KindEnglish, wantOwn: 2, wantOther: 2},
		{name: "Sealed_Open_Hides_Others", kind: model.KindSealed, wantOwn: 1, wantOther: 1},
		{name: "Sealed_Closed_Shows_All", kind: model.KindSealed, close: true, wantOwn: 2, wantOther: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := SetupTestApp()
			seller := SignupAndLogin(t, app.Router, "seller")
			alice := SignupAndLogin(t, app.Router, "alice")
			bob := SignupAndLogin(t, app.Router, "bob")
			a := SeedOpenAuction(t, app, seller, bidding.AuctionInput{Kind: tt.kind, StartingPrice: 50})

			_, w := ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+a.AuctionID+"/bids", map[string]any{"bidAmount": 60}, alice.Cookies)
			require.Equal(t, http.StatusCreated, w.Code)
			_, w = ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+a.AuctionID+"/bids", map[string]any{"bidAmount": 70}, bob.Cookies)
			require.Equal(t, http.StatusCreated, w.Code)

			if tt.close {
				_, w = ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+a.AuctionID+"/close", nil, seller.Cookies)
				require.Equal(t, http.StatusOK, w.Code)
			}

			resp, w := ExecuteRequestAndParse(t, app.Router, http.MethodGet, "/auctions/"+a.AuctionID+"/bids", nil, alice.Cookies)
			require.Equal(t, http.StatusOK, w.Code)
			require.Len(t, resp["data"].([]any), tt.wantOwn)

			resp, w = ExecuteRequestAndParse(t, app.Router, http.MethodGet, "/auctions/"+a.AuctionID+"/bids", nil, bob.Cookies)
			require.Equal(t, http.StatusOK, w.Code)
			require.Len(t, resp["data"].([]any), tt.wantOther)
		})
	}
}

// CloseAuctionHandler Tests
func TestCloseAuctionHandler(t *testing.T) {
	tests := []struct {
		name       string
		kind       model.AuctionKind
		bids       []float64 // alice, bob alternating
		wantWinner string
		wantAmount float64
	}{
		{name: "English_Highest_Wins", kind: model.KindEnglish, bids: []float64{60, 80}, wantWinner: "bob", wantAmount: 80},
		{name: "Sealed_Highest_Wins", kind: model.KindSealed, bids: []float64{90, 70}, wantWinner: "alice", wantAmount: 90},
		{name: "No_Bids", kind: model.KindEnglish, wantAmount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := SetupTestApp()
			seller := SignupAndLogin(t, app.Router, "seller")
			users := map[string]TestUser{
				"alice": SignupAndLogin(t, app.Router, "alice"),
				"bob":   SignupAndLogin(t, app.Router, "bob"),
			}
			a := SeedOpenAuction(t, app, seller, bidding.AuctionInput{Kind: tt.kind, StartingPrice: 50})

			for i, amount := range tt.bids {
				who := users["alice"]
				if i%2 == 1 {
					who = users["bob"]
				}
				_, w := ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+a.AuctionID+"/bids", map[string]any{"bidAmount": amount}, who.Cookies)
				require.Equal(t, http.StatusCreated, w.Code)
			}

			_, w := ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+a.AuctionID+"/close", nil, users["alice"].Cookies)
			require.Equal(t, http.StatusForbidden, w.Code)

			resp, w := ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+a.AuctionID+"/close", nil, seller.Cookies)
			require.Equal(t, http.StatusOK, w.Code)
			data := resp["data"].(map[string]any)
			wantWinner := ""
			if tt.wantWinner != "" {
				wantWinner = users[tt.wantWinner].ID
			}
			require.Equal(t, wantWinner, data["winner_id"])
			require.Equal(t, tt.wantAmount, data["winning_bid"])
			require.Equal(t, string(model.StatusClosed), data["status"])

			// closing again reports the same outcome
			again, w := ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+a.AuctionID+"/close", nil, seller.Cookies)
			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, data, again["data"])
		})
	}
}

func TestDutchAuction_FirstBidAtLivePriceWins(t *testing.T) {
	app := SetupTestApp()
	seller := SignupAndLogin(t, app.Router, "seller")
	alice := SignupAndLogin(t, app.Router, "alice")
	bob := SignupAndLogin(t, app.Router, "bob")
	a := SeedOpenAuction(t, app, seller, bidding.AuctionInput{Kind: model.KindDutch, StartingPrice: 100, FloorPrice: 40})

	resp, w := ExecuteRequestAndParse(t, app.Router, http.MethodGet, "/auctions/"+a.AuctionID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	live := resp["data"].(map[string]any)["current_price"].(float64)
	require.Less(t, live, 100.0)
	require.Greater(t, live, 40.0)

	_, w = ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+a.AuctionID+"/bids", map[string]any{"bidAmount": 41}, bob.Cookies)
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp, w = ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+a.AuctionID+"/bids", map[string]any{"bidAmount": 100}, alice.Cookies)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, string(model.StatusClosed), resp["data"].(map[string]any)["status"])

	resp, w = ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+a.AuctionID+"/bids", map[string]any{"bidAmount": 100}, bob.Cookies)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "state_conflict", resp["error"])
}

// Listing handler Tests
func TestListingHandlers(t *testing.T) {
	app := SetupTestApp()
	seller := SignupAndLogin(t, app.Router, "seller")
	alice := SignupAndLogin(t, app.Router, "alice")
	bob := SignupAndLogin(t, app.Router, "bob")

	first := SeedOpenAuction(t, app, seller, bidding.AuctionInput{Kind: model.KindEnglish, StartingPrice: 50, Category: "art"})
	second := SeedOpenAuction(t, app, seller, bidding.AuctionInput{Kind: model.KindSealed, StartingPrice: 30, Category: "books"})

	bids := []struct {
		user   TestUser
		id     string
		amount float64
	}{
		{alice, first.AuctionID, 60},
		{bob, first.AuctionID, 70},
		{alice, second.AuctionID, 40},
	}
	for _, b := range bids {
		_, w := ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+b.id+"/bids", map[string]any{"bidAmount": b.amount}, b.user.Cookies)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	_, w := ExecuteRequestAndParse(t, app.Router, http.MethodPost, "/auctions/"+first.AuctionID+"/close", nil, seller.Cookies)
	require.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name    string
		path    string
		user    TestUser
		wantIDs []string
	}{
		{name: "Created", path: "/auctions/created-auctions", user: seller, wantIDs: []string{first.AuctionID, second.AuctionID}},
		{name: "Created_None", path: "/auctions/created-auctions", user: alice, wantIDs: []string{}},
		{name: "Bidded_Alice", path: "/auctions/bidded", user: alice, wantIDs: []string{first.AuctionID, second.AuctionID}},
		{name: "Bidded_Bob", path: "/auctions/bidded", user: bob, wantIDs: []string{first.AuctionID}},
		{name: "Won_Bob", path: "/auctions/won", user: bob, wantIDs: []string{first.AuctionID}},
		{name: "Won_Alice", path: "/auctions/won", user: alice, wantIDs: []string{}},
		{name: "Public_Category_Filter", path: "/auctions?category=books", wantIDs: []string{second.AuctionID}},
		{name: "Public_Status_Filter", path: "/auctions?status=closed", wantIDs: []string{first.AuctionID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, w := ExecuteRequestAndParse(t, app.Router, http.MethodGet, tt.path, nil, tt.user.Cookies)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			items := resp["data"].([]any)
			require.Len(t, items, len(tt.wantIDs))

			ids := map[string]bool{}
			for _, i := range items {
				ids[i.(map[string]any)["auction_id"].(string)] = true
			}
			for _, id := range tt.wantIDs {
				require.True(t, ids[id], "missing %s", id)
			}
		})
	}

	_, w = ExecuteRequestAndParse(t, app.Router, http.MethodGet, "/auctions?limit=101", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
