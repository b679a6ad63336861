package app

import (
	"fmt"

	"github.com/alanyoungcy/biathlonbet/internal/config"
	"github.com/alanyoungcy/biathlonbet/internal/domain"
	"github.com/alanyoungcy/biathlonbet/internal/vision"
)

// visionConfig converts the [vision] config section into referee settings.
// Zones must be listed innermost first, in the nesting order of domain.Zones.
func visionConfig(vc config.VisionConfig) (vision.Config, error) {
	out := vision.Config{
		BlurSigma:     vc.BlurSigma,
		ZoneMinArea:   vc.ZoneMinArea,
		MarkerMinArea: vc.MarkerMinArea,
		EpsilonRatio:  vc.EpsilonRatio,
	}

	marker, err := band(vc.Marker)
	if err != nil {
		return vision.Config{}, fmt.Errorf("vision config: marker: %w", err)
	}
	out.Marker = marker

	prev := -1
	for _, zc := range vc.Zones {
		zone, err := domain.ParseZone(zc.Zone)
		if err != nil {
			return vision.Config{}, fmt.Errorf("vision config: %w", err)
		}
		rank := nestingRank(zone)
		if rank <= prev {
			return vision.Config{}, fmt.Errorf("vision config: zone %s out of order, want innermost first %v", zone, domain.Zones)
		}
		prev = rank
		b, err := band(zc.Ranges)
		if err != nil {
			return vision.Config{}, fmt.Errorf("vision config: zone %s: %w", zone, err)
		}
		out.Zones = append(out.Zones, vision.ZoneBand{Zone: zone, Band: b})
	}
	return out, nil
}

func nestingRank(z domain.Zone) int {
	for i, k := range domain.Zones {
		if k == z {
			return i
		}
	}
	return -1
}

func band(ranges []config.RangeConfig) (vision.Band, error) {
	rs := make([]vision.Range, 0, len(ranges))
	for _, rc := range ranges {
		r, err := vision.RangeFromBounds(rc.Lower, rc.Upper)
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return vision.NewBand(rs...), nil
}
