// Package models defines the data structures shared across the service.
package models

import "time"

// MemoryRecord is one persisted conversation turn for a child.
// Records are append-only: they are never updated or deleted.
type MemoryRecord struct {
	ID        string    `json:"id"`
	ChildID   string    `json:"childId"`
	Embedding []float32 `json:"-"`
	UserText  string    `json:"userText"`
	AIText    string    `json:"aiText"`
	CreatedAt time.Time `json:"createdAt"`
}
