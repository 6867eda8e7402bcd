package stats

import (
	"context"
	"math"

	"github.com/reviewloop/reviewloop/services/review-service/internal/storage"
)

type Aggregator struct {
	records *storage.Records
}

func NewAggregator(records *storage.Records) *Aggregator {
	return &Aggregator{records: records}
}

type Stats struct {
	Total           int `json:"total"`
	FiveStar        int `json:"fiveStar"`
	FourStarOrBelow int `json:"fourStarOrBelow"`
	ConversionRate  int `json:"conversionRate"`
	Skipped         int `json:"-"`
}

// Compute scans every review recorded for the business and recomputes the
// all-time counts. No caching, no time windows.
func (a *Aggregator) Compute(ctx context.Context, businessID string) (Stats, error) {
	reviews, skipped, err := a.records.ListReviews(ctx, businessID)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{Total: len(reviews), Skipped: skipped}
	for _, rv := range reviews {
		if rv.Rating == 5 {
			s.FiveStar++
		} else {
			s.FourStarOrBelow++
		}
	}
	if s.Total > 0 {
		s.ConversionRate = int(math.Round(float64(s.FiveStar) / float64(s.Total) * 100))
	}
	return s, nil
}
