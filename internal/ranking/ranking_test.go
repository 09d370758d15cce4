package ranking

import "testing"

func TestLevelFor(t *testing.T) {
	tests := []struct {
		balance int64
		want    string
	}{
		{balance: -200, want: LevelBeginner},
		{balance: 0, want: LevelBeginner},
		{balance: 500, want: LevelBeginner},
		{balance: 1499, want: LevelBeginner},
		{balance: 1500, want: LevelIntermediate},
		{balance: 2999, want: LevelIntermediate},
		{balance: 3000, want: LevelAdvanced},
		{balance: 4999, want: LevelAdvanced},
		{balance: 5000, want: LevelElite},
		{balance: 120000, want: LevelElite},
	}

	for _, tt := range tests {
		if got := LevelFor(tt.balance); got != tt.want {
			t.Fatalf("LevelFor(%d) = %q, want %q", tt.balance, got, tt.want)
		}
	}
}

func TestRankBucketFor(t *testing.T) {
	tests := []struct {
		balance int64
		want    int
	}{
		{balance: -1, want: 5},
		{balance: 0, want: 5},
		{balance: 499, want: 5},
		{balance: 500, want: 4},
		{balance: 1499, want: 4},
		{balance: 1500, want: 3},
		{balance: 2999, want: 3},
		{balance: 3000, want: 2},
		{balance: 4999, want: 2},
		{balance: 5000, want: 1},
	}

	for _, tt := range tests {
		if got := RankBucketFor(tt.balance); got != tt.want {
			t.Fatalf("RankBucketFor(%d) = %d, want %d", tt.balance, got, tt.want)
		}
	}
}

func TestClassify_BucketAndLevelDiffer(t *testing.T) {
	// 700 баллов: ещё Beginner, но уже четвёртая корзина.
	c := Classify(700)
	if c.Level != LevelBeginner {
		t.Fatalf("Level = %q, want %q", c.Level, LevelBeginner)
	}
	if c.RankBucket != 4 {
		t.Fatalf("RankBucket = %d, want 4", c.RankBucket)
	}
}
