package usecase

import "github.com/shopspring/decimal"

// 金額計算はすべてdecimalで行い、小数2桁（四捨五入）に揃える

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func round2f(d decimal.Decimal) float64 {
	f, _ := round2(d).Float64()
	return f
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
