package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"Agentica/sdk/go/agentica"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /wallets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(agentica.Wallet{
			RoomID:                  "room-demo",
			OwnerAccountName:        "room-demo",
			CustodialAccountAddress: "0x000000000000000000000000000000000000dEaD",
			Network:                 "base-sepolia",
		})
	})
	mux.HandleFunc("POST /wallets/{room_id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agentica.Outcome{
			Success:       true,
			Action:        r.PathValue("action"),
			RoomID:        r.PathValue("room_id"),
			TransactionID: "tx-demo",
			Result:        json.RawMessage(`{"native_balance":"0.5"}`),
		})
	})
	mux.HandleFunc("GET /wallets/{room_id}/transactions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agentica.TransactionPage{
			RoomID: r.PathValue("room_id"),
			Transactions: []*agentica.Transaction{{
				ID:        "tx-demo",
				RoomID:    r.PathValue("room_id"),
				Action:    "balance",
				Status:    "success",
				CreatedAt: time.Now().UTC(),
			}},
			Total: 1,
			Limit: 50,
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := agentica.NewClient(srv.URL, agentica.WithHTTPClient(srv.Client()))
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wallet, err := client.ProvisionWallet(ctx, "room-demo")
	if err != nil {
		panic(err)
	}
	fmt.Printf("provisioned wallet %s on %s\n", wallet.CustodialAccountAddress, wallet.Network)

	outcome, err := client.Dispatch(ctx, wallet.RoomID, "balance", nil)
	if err != nil {
		panic(err)
	}
	fmt.Printf("balance via %s: %s\n", outcome.TransactionID, outcome.Result)

	page, err := client.WalletTransactions(ctx, wallet.RoomID, agentica.ListOptions{})
	if err != nil {
		panic(err)
	}
	fmt.Printf("ledger holds %d transaction(s)\n", page.Total)
}
