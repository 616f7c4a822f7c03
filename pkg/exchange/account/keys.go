package account

import "fmt"

// Pebble key schema. Prefix-based so a range scan recovers every account.

const prefixAccount = "acc:"

// accountKey returns the key for an account.
// Format: "acc:{traderID}"
func accountKey(traderID string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAccount, traderID))
}

// accountPrefix is the range-scan prefix covering all accounts.
func accountPrefix() []byte {
	return []byte(prefixAccount)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
