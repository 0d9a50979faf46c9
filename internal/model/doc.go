// Package model defines shared data types used across the kitchen display system.
//
// Conventions:
//   - Stage keys: lowercased stage names (e.g., "new", "preparing", "ready")
//   - Positions: zero-based integers, UnsetPosition when the backend has none
//   - Timestamps: time.Time, zero when unknown
//   - IDs: strings; numeric JSON ids are accepted and stored in decimal form
package model
