// Package domain holds shipment vocabulary owned by the shipping
// processor: the carrier set and tracking number generation.
package domain

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Carriers is the fixed set a new shipment is assigned from.
var Carriers = []string{"FedEx", "UPS", "USPS", "DHL"}

// PickCarrier selects a carrier using the supplied roll in [0,1).
func PickCarrier(roll float64) string {
	idx := int(roll * float64(len(Carriers)))
	if idx >= len(Carriers) {
		idx = len(Carriers) - 1
	}
	return Carriers[idx]
}

// TrackingNumber builds a carrier-prefixed tracking number: the first
// two carrier letters upper-cased plus nine random digits.
func TrackingNumber(carrier string) string {
	prefix := strings.ToUpper(carrier[:2])
	return fmt.Sprintf("%s%09d", prefix, rand.IntN(900_000_000)+100_000_000)
}
