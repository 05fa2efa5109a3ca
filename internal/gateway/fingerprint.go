package gateway

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
)

// requestIDLength bounds the printable id handed back to clients.
const requestIDLength = 16

// newRequestID produces the identifier that keys an optimistic read in
// the result cache. The hash covers the tool, its arguments, and a
// nonce, so identical queries issued twice still poll distinct results.
func newRequestID(tool string, args map[string]any) string {
	payload, err := json.Marshal(args)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", args))
	}

	h := sha256.New()
	h.Write([]byte(tool))
	h.Write(payload)
	h.Write([]byte(uuid.NewString()))

	encoded := base58.Encode(h.Sum(nil))
	if len(encoded) > requestIDLength {
		encoded = encoded[:requestIDLength]
	}
	return encoded
}
