// Package playledger implements the play-money ledger inside the
// treasury-finance context.
//
// The module owns exactly-once posting of treasury debits for closed monetary
// proposals, the append-only ledger that reconciles to the singleton treasury
// balance, and ledger event production through outbox-backed workers. It keeps
// business rules in application/domain layers and isolates infrastructure
// concerns behind ports and adapters.
package playledger
