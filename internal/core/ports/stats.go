package ports

import "time"

type TokenKind string

const (
	TokenKindPrompt     TokenKind = "prompt"
	TokenKindCompletion TokenKind = "completion"
)

type StatsCollector interface {
	RecordRequest(provider, model string, status int, latency time.Duration)
	RecordUpstreamLatency(provider string, latency time.Duration)
	RecordBytes(provider string, bytes int64)
	RecordTokens(kind TokenKind, model string, count int)
	RecordInFlight(delta int)
	RecordFailure(kind string)
	RecordEviction(cache, reason string)
}

// NoopStatsCollector discards everything, used when metrics are disabled
type NoopStatsCollector struct{}

func (NoopStatsCollector) RecordRequest(string, string, int, time.Duration) {}
func (NoopStatsCollector) RecordUpstreamLatency(string, time.Duration)      {}
func (NoopStatsCollector) RecordBytes(string, int64)                        {}
func (NoopStatsCollector) RecordTokens(TokenKind, string, int)              {}
func (NoopStatsCollector) RecordInFlight(int)                               {}
func (NoopStatsCollector) RecordFailure(string)                             {}
func (NoopStatsCollector) RecordEviction(string, string)                    {}
