package store

import "github.com/clawlet/broker/brokererr"

// FindWallet returns the index of the wallet with the given id, or -1.
func FindWallet(doc *Document, id string) int {
	for i := range doc.Wallets {
		if doc.Wallets[i].ID == id {
			return i
		}
	}
	return -1
}

// ActiveIndex returns the index of the active wallet, or -1.
func ActiveIndex(doc *Document) int {
	if doc.ActiveWalletID == nil {
		return -1
	}
	return FindWallet(doc, *doc.ActiveWalletID)
}

// RequireActiveIndex returns the active wallet's index or a not-initialized error.
func RequireActiveIndex(doc *Document) (int, error) {
	idx := ActiveIndex(doc)
	if idx < 0 {
		return -1, brokererr.New(brokererr.KindNotInitialized, "no active wallet")
	}
	return idx, nil
}
