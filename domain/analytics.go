package domain

import "time"

// EntityCount is one entry of the top-K entity ranking.
type EntityCount struct {
	Entity string `json:"entity"`
	Count  int    `json:"count"`
}

// AnalyticsView is a consistent point-in-time copy of a room's
// aggregate statistics. It never aliases the aggregator's internal
// maps, so readers can hold it freely.
type AnalyticsView struct {
	Room                  string         `json:"room"`
	EmotionDistribution   map[string]int `json:"emotionDistribution"`
	TopEntities           []EntityCount  `json:"topEntities"`
	SentimentDistribution map[string]int `json:"sentimentDistribution"`
	MessageCount          int            `json:"messageCount"`
	At                    time.Time      `json:"at"`
}
