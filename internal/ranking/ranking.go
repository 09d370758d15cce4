// Package ranking вычисляет уровень и позицию в рейтинге по балансу баллов.
package ranking

const (
	LevelBeginner     = "Beginner"
	LevelIntermediate = "Intermediate"
	LevelAdvanced     = "Advanced"
	LevelElite        = "Elite"
)

// Classification — уровень и корзина рейтинга для баланса.
type Classification struct {
	Level      string `json:"level"`
	RankBucket int    `json:"rank_bucket"`
}

type threshold struct {
	min   int64
	level string
}

// Пороги уровней по убыванию, граница относится к старшему уровню.
var levelThresholds = []threshold{
	{min: 5000, level: LevelElite},
	{min: 3000, level: LevelAdvanced},
	{min: 1500, level: LevelIntermediate},
}

// Границы корзин рейтинга. Набор отличается от порогов уровней (есть граница 500),
// поэтому корзина считается отдельно.
var rankBoundaries = []int64{5000, 3000, 1500, 500}

// Classify возвращает уровень и корзину рейтинга для баланса.
func Classify(balance int64) Classification {
	return Classification{
		Level:      LevelFor(balance),
		RankBucket: RankBucketFor(balance),
	}
}

// LevelFor возвращает название уровня. Отрицательный баланс даёт Beginner.
func LevelFor(balance int64) string {
	for _, t := range levelThresholds {
		if balance >= t.min {
			return t.level
		}
	}
	return LevelBeginner
}

// RankBucketFor возвращает корзину рейтинга от 1 (лучшая) до 5.
func RankBucketFor(balance int64) int {
	for i, b := range rankBoundaries {
		if balance >= b {
			return i + 1
		}
	}
	return len(rankBoundaries) + 1
}
