package nutrition

import "math"

// Sanitize は非有限値（NaN, ±Inf）を0に置き換えたコピーを返す
func Sanitize(n Nutrients) Nutrients {
	for _, p := range n.fields() {
		*p = finiteOrZero(*p)
	}
	return n
}

// Scale は100gあたりの栄養素を摂取量（グラム）に換算する。
// 負の値や非有限値の摂取量は0として扱い、結果にNaNは含まれない。
func Scale(per100g Nutrients, portionGrams float64) Nutrients {
	grams := finiteOrZero(portionGrams)
	if grams < 0 {
		grams = 0
	}
	multiplier := grams / 100

	scaled := Sanitize(per100g)
	for _, p := range scaled.fields() {
		*p = finiteOrZero(*p * multiplier)
	}
	return scaled
}

// Accumulate は複数の栄養素をフィールドごとに合計する。
// 空の入力に対してはゼロ値を返す。
func Accumulate(items ...Nutrients) Nutrients {
	var total Nutrients
	totalFields := total.fields()

	for _, item := range items {
		for i, p := range item.fields() {
			*totalFields[i] += finiteOrZero(*p)
		}
	}
	return total
}

// IsZero は全フィールドが0かどうかを返す
func (n Nutrients) IsZero() bool {
	return n == Nutrients{}
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
