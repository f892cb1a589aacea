package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/vmshub/internal/database"
	"github.com/yourusername/vmshub/internal/vms"
	"go.uber.org/zap"
)

// MatchKind says which pass of the clip search produced a match.
// Callers treat fallback matches as "best guess", not coverage.
type MatchKind string

const (
	// MatchInterval: the clip's [start, end] interval contains the target
	MatchInterval MatchKind = "interval"
	// MatchPreceding: closest clip starting before the target
	MatchPreceding MatchKind = "preceding"
	// MatchFallback: no time match at all, first catalog entry returned
	MatchFallback MatchKind = "fallback"
)

// ClipMatch is a resolved recording clip plus how it was found
type ClipMatch struct {
	Clip vms.RecordingClip `json:"clip"`
	Kind MatchKind         `json:"kind"`
}

// Exact reports whether the match actually covers or borders the
// requested time, as opposed to the last-resort fallback.
func (m *ClipMatch) Exact() bool {
	return m.Kind != MatchFallback
}

// Range is the span of time a monitor has recordings for
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Availability is the answer to "is there footage of this moment"
type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// ClipResolver finds recorded clips by time over a provider's catalog.
// The provider is assumed to list clips most recent first.
type ClipResolver struct {
	registry     *vms.Registry
	catalogLimit int
	logger       *zap.Logger
}

// ClipResolverConfig holds the configuration for ClipResolver
type ClipResolverConfig struct {
	Registry     *vms.Registry
	CatalogLimit int
	Logger       *zap.Logger
}

// NewClipResolver creates a new ClipResolver
func NewClipResolver(config ClipResolverConfig) *ClipResolver {
	catalogLimit := config.CatalogLimit
	if catalogLimit <= 0 {
		catalogLimit = 100
	}

	return &ClipResolver{
		registry:     config.Registry,
		catalogLimit: catalogLimit,
		logger:       config.Logger,
	}
}

// ResolveClip finds the clip covering the requested time window.
// end may be zero. Search order: containing interval, then closest
// preceding clip, then the first catalog entry as a typed fallback.
// An empty catalog resolves to nil with no error.
func (c *ClipResolver) ResolveClip(ctx context.Context, server *database.VMSServer, monitorID string, start, end time.Time) (*ClipMatch, error) {
	clips, err := c.fetchCatalog(ctx, server, monitorID)
	if err != nil {
		return nil, err
	}
	if len(clips) == 0 {
		return nil, nil
	}

	// 종료 시각이 주어지면 더 이른 쪽을 기준으로 탐색
	target := start
	if !end.IsZero() && end.Before(start) {
		target = end
	}

	// 1차: target을 구간에 포함하는 클립 (end 없는 클립은 open-ended)
	for i := range clips {
		clip := &clips[i]
		if clip.Start.IsZero() {
			continue
		}
		if target.Before(clip.Start) {
			continue
		}
		if clip.End.IsZero() || !target.After(clip.End) {
			return &ClipMatch{Clip: *clip, Kind: MatchInterval}, nil
		}
	}

	// 2차: target 직전에 시작한 클립 중 가장 늦은 것
	var preceding *vms.RecordingClip
	for i := range clips {
		clip := &clips[i]
		if clip.Start.IsZero() || clip.Start.After(target) {
			continue
		}
		if preceding == nil || clip.Start.After(preceding.Start) {
			preceding = clip
		}
	}
	if preceding != nil {
		return &ClipMatch{Clip: *preceding, Kind: MatchPreceding}, nil
	}

	// 최후: 카탈로그 첫 항목. 시간 매칭이 아니므로 fallback으로 표시
	return &ClipMatch{Clip: clips[0], Kind: MatchFallback}, nil
}

// RecordingRange reports the oldest and newest recorded moments of a
// monitor. Nil when no clip has a parseable start time.
func (c *ClipResolver) RecordingRange(ctx context.Context, server *database.VMSServer, monitorID string) (*Range, error) {
	clips, err := c.fetchCatalog(ctx, server, monitorID)
	if err != nil {
		return nil, err
	}

	var r *Range
	for _, clip := range clips {
		if clip.Start.IsZero() {
			continue
		}

		last := clip.Start
		if !clip.End.IsZero() {
			last = clip.End
		}

		if r == nil {
			r = &Range{Start: clip.Start, End: last}
			continue
		}
		if clip.Start.Before(r.Start) {
			r.Start = clip.Start
		}
		if last.After(r.End) {
			r.End = last
		}
	}

	return r, nil
}

// CheckAvailability reports whether footage of the given moment exists.
// Only interval and preceding matches count; the fallback clip is a
// guess, not availability.
func (c *ClipResolver) CheckAvailability(ctx context.Context, server *database.VMSServer, monitorID string, ts time.Time) (Availability, error) {
	match, err := c.ResolveClip(ctx, server, monitorID, ts, time.Time{})
	if err != nil {
		return Availability{}, err
	}

	if match == nil {
		return Availability{Available: false, Reason: "no recordings"}, nil
	}
	if !match.Exact() {
		return Availability{Available: false, Reason: "no clip covers the requested time"}, nil
	}

	return Availability{Available: true}, nil
}

func (c *ClipResolver) fetchCatalog(ctx context.Context, server *database.VMSServer, monitorID string) ([]vms.RecordingClip, error) {
	if !vms.CapabilitiesFor(server.Provider).SupportsPlayback {
		return nil, fmt.Errorf("provider %q playback: %w", server.Provider, vms.ErrNotSupported)
	}

	return c.registry.Get(server.Provider).RecordingCatalog(ctx, server, monitorID, c.catalogLimit)
}
