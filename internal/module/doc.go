// Package module provides the Module Registry for Greenhouse Core.
//
// The registry is the system of record for every control module a device
// fleet has ever announced. It covers four concerns:
//
//   - Registration: devices announce themselves by MAC address; known
//     modules get their IP refreshed, unknown ones are created unclaimed.
//   - Ownership: users claim and release modules. Claiming is a
//     compare-and-set so concurrent claims resolve to exactly one owner.
//   - Decisions: Decide is the pure threshold comparator that turns one
//     sensor sample plus the configured targets into per-channel ON/OFF
//     actuator commands.
//   - History: every accepted sensor reading is appended to an immutable
//     log, with the module's last-observed value updated in the same
//     transaction.
//
// The package holds no in-process state. Every operation reads and writes
// the SQLite store directly, so any number of stateless API replicas can
// share one database without coordination beyond its transactions.
package module
