package nftminter

import (
	"time"
)

// MintTimeLayout is how mint times are persisted in the record store
const MintTimeLayout = "2006-01-02 15:04:05"

// MintTimeZone is the fixed reference offset for persisted mint times.
// Existing records were written as UTC wall clock shifted +8h, which is the
// same string as the instant rendered in this zone.
var MintTimeZone = time.FixedZone("UTC+8", 8*60*60)

// FormatMintTime renders the instant in MintTimeZone without changing it
func FormatMintTime(t time.Time) string {
	return t.In(MintTimeZone).Format(MintTimeLayout)
}

// ParseMintTime reads a persisted mint time back into a UTC instant
func ParseMintTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(MintTimeLayout, s, MintTimeZone)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
