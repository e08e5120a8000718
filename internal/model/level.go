package model

import "time"

// LevelKind distinguishes support from resistance.
type LevelKind string

const (
	LevelSupport    LevelKind = "SUPPORT"
	LevelResistance LevelKind = "RESISTANCE"
)

// SRLevel is a support or resistance price zone derived from swing points.
// Levels are owned by the structure detector; everything downstream reads
// immutable copies.
type SRLevel struct {
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Kind         LevelKind `json:"kind"`
	QualityScore float64   `json:"quality_score"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastTestedAt time.Time `json:"last_tested_at"`
	TestCount    int       `json:"test_count"`
}
