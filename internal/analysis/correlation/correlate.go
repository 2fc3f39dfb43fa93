package correlation

import (
	"sort"

	"github.com/seenimoa/stockpulse/pkg/models"
)

// Correlate aligns every sentiment day to a trading day that has a price
// change and emits one record per hit. Days that do not align are dropped.
// Records are ordered by news date.
func Correlate(symbol string, daily map[Date]float64, changes map[Date]float64) []models.Correlation {
	known := KeySet(changes)

	newsDates := make([]Date, 0, len(daily))
	for d := range daily {
		newsDates = append(newsDates, d)
	}
	sort.Slice(newsDates, func(i, j int) bool { return newsDates[i] < newsDates[j] })

	correlations := make([]models.Correlation, 0, len(newsDates))
	for _, newsDate := range newsDates {
		tradingDate, ok := Align(newsDate, known)
		if !ok {
			continue
		}
		change, ok := changes[tradingDate]
		if !ok {
			continue
		}
		correlations = append(correlations, models.Correlation{
			Symbol:      symbol,
			NewsDate:    newsDate.String(),
			TradingDate: tradingDate.String(),
			Sentiment:   daily[newsDate],
			PriceChange: change,
		})
	}
	return correlations
}

// Summarize partitions correlations by sentiment sign using the
// classification thresholds and averages the price change in each partition.
// Neutral days count toward the total only.
func Summarize(correlations []models.Correlation) models.CorrelationSummary {
	summary := models.CorrelationSummary{TotalCorrelations: len(correlations)}

	var posSum, negSum float64
	for _, c := range correlations {
		switch models.Classify(c.Sentiment) {
		case models.Positive:
			summary.PositiveSentimentDays++
			posSum += c.PriceChange
		case models.Negative:
			summary.NegativeSentimentDays++
			negSum += c.PriceChange
		}
	}

	if summary.PositiveSentimentDays > 0 {
		summary.AvgPositivePriceChange = posSum / float64(summary.PositiveSentimentDays)
	}
	if summary.NegativeSentimentDays > 0 {
		summary.AvgNegativePriceChange = negSum / float64(summary.NegativeSentimentDays)
	}
	return summary
}

// Analyze runs the whole pipeline for one symbol: daily sentiment, daily
// price changes, alignment and summary. prices must be in ascending order.
func Analyze(symbol string, scored []models.ScoredArticle, prices []models.PriceBar) (models.CorrelationReport, error) {
	daily, err := DailySentiment(scored)
	if err != nil {
		return models.CorrelationReport{}, err
	}
	changes, err := DailyPriceChanges(prices)
	if err != nil {
		return models.CorrelationReport{}, err
	}

	correlations := Correlate(symbol, daily, changes)
	report := models.CorrelationReport{
		Symbol:       symbol,
		Correlations: correlations,
		Summary:      Summarize(correlations),
		Coverage: models.CorrelationCoverage{
			ArticlesUsed:      len(scored),
			DaysWithSentiment: len(daily),
			DaysCorrelated:    len(correlations),
		},
	}
	if len(prices) > 1 {
		report.Coverage.TradingDays = len(prices) - 1
		report.Coverage.CoveragePct = float64(len(correlations)) / float64(report.Coverage.TradingDays) * 100
	}
	if len(correlations) == 0 {
		report.Message = "No correlations found"
	}
	return report, nil
}
