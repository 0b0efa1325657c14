// Package rates keeps a process-wide table of currency and crypto rates,
// expressed as units of each code per 1 USD.
//
// The table is fed by two independent upstream sources (fiat and crypto),
// replaced atomically on every successful refresh and kept as-is when a
// refresh fails. Readers never block on the network: RateFor is a pointer
// load, and only FetchRateInBackground may trigger a refresh on a miss.
package rates
