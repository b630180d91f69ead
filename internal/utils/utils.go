// Package utils provides common utility functions for symbol validation.
//
// Equity tickers and crypto pairs have different shapes: tickers are short
// upper-case codes ("AAPL", "BRK.B"), crypto pairs follow the BASE-QUOTE
// convention ("BTC-USD") against a supported quote asset.
package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"marketdata/internal/model"
)

// Error definitions for validation functions
var (
	ErrNoSymbols      = errors.New("zero symbols requested")
	ErrTooManySymbols = errors.New("too many symbols requested")
)

// maxTickerLen bounds equity tickers, including share-class suffixes.
const maxTickerLen = 10

// QuoteAssetSet contains the supported quote assets for crypto pairs.
var QuoteAssetSet = map[string]bool{
	"USD":  true, // US Dollar
	"USDT": true, // Tether USD
	"EUR":  true, // Euro
	"BTC":  true, // Bitcoin
	"ETH":  true, // Ethereum
}

// supportedQuotesCache is a pre-computed string of supported quote assets
// to avoid rebuilding this string on every validation error.
var supportedQuotesCache = getSupportedQuotes(QuoteAssetSet)

// ValidateTicker validates an equity ticker such as "AAPL" or "BRK.B".
//
// Tickers are case-insensitive, at most ten characters, and may contain
// letters, digits and a single '.' or '-' share-class separator.
func ValidateTicker(ticker string) error {
	if ticker == "" {
		return errors.New("symbol cannot be empty")
	}
	if len(ticker) > maxTickerLen {
		return fmt.Errorf("invalid ticker %q: longer than %d characters", ticker, maxTickerLen)
	}

	separators := 0
	for i, r := range strings.ToUpper(ticker) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '-':
			if i == 0 || i == len(ticker)-1 {
				return fmt.Errorf("invalid ticker %q: separator at edge", ticker)
			}
			separators++
		default:
			return fmt.Errorf("invalid ticker %q: unexpected character %q", ticker, r)
		}
	}
	if separators > 1 {
		return fmt.Errorf("invalid ticker %q: more than one separator", ticker)
	}

	return nil
}

// ValidatePair validates that a crypto pair follows the expected format
// and uses a supported quote asset.
//
// The expected format is "BASE-QUOTE" where:
//   - BASE is the base asset (e.g., "BTC", "ETH")
//   - QUOTE is the quote asset and must be one of the supported quote assets
//
// The validation is case-insensitive.
func ValidatePair(pair string) error {
	if pair == "" {
		return errors.New("symbol cannot be empty")
	}

	parts := strings.Split(pair, "-")
	if len(parts) != 2 {
		return fmt.Errorf("invalid pair format: expected BASE-QUOTE, got %q", pair)
	}

	if len(parts[0]) == 0 {
		return errors.New("base asset cannot be empty")
	}

	if len(parts[1]) == 0 {
		return errors.New("quote asset cannot be empty")
	}

	quote := strings.ToUpper(parts[1])
	if !QuoteAssetSet[quote] {
		return fmt.Errorf("unsupported quote asset: %s (supported: %s)",
			quote, supportedQuotesCache)
	}

	return nil
}

// ValidateSymbol dispatches to the validator of the given asset class.
func ValidateSymbol(symbol string, class model.AssetClass) error {
	switch class {
	case model.Equity:
		return ValidateTicker(symbol)
	case model.Crypto:
		return ValidatePair(symbol)
	default:
		return fmt.Errorf("unknown asset class %q", class)
	}
}

// ValidateSymbols validates a slice of symbols and enforces quantity limits.
//
// This function performs two types of validation:
//  1. Quantity validation: Ensures the number of symbols is within acceptable limits
//  2. Format validation: Validates each symbol using ValidateSymbol
func ValidateSymbols(symbols []string, class model.AssetClass, maxAllowed int) error {
	if len(symbols) == 0 {
		return ErrNoSymbols
	}

	if maxAllowed <= 0 {
		return fmt.Errorf("%w: max allowed must be positive, got %d",
			ErrTooManySymbols, maxAllowed)
	}

	if len(symbols) > maxAllowed {
		return fmt.Errorf("%w: requested %d symbols, maximum allowed %d",
			ErrTooManySymbols, len(symbols), maxAllowed)
	}

	for i, symbol := range symbols {
		if err := ValidateSymbol(symbol, class); err != nil {
			return fmt.Errorf("invalid symbol at index %d (%q): %w", i, symbol, err)
		}
	}

	return nil
}

// SplitPair splits a validated crypto pair into lower-case base and quote.
func SplitPair(pair string) (base, quote string) {
	parts := strings.SplitN(strings.ToLower(pair), "-", 2)
	if len(parts) != 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// getSupportedQuotes builds a sorted, comma-separated string of supported
// quote assets for user-facing error messages.
func getSupportedQuotes(quoteAssetSet map[string]bool) string {
	keys := make([]string, 0, len(quoteAssetSet))
	for k := range quoteAssetSet {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
