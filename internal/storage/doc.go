// Package storage is the durable side of the reminder registry.
//
// It keeps two record kinds:
//   - subscribers (one row per user id)
//   - custom messages (one row per message type)
//
// Everything is loaded once at startup with LoadAll and then updated record by
// record. Malformed stored values never abort a load: they are defaulted and
// logged.
package storage
