package cutting

import "math"

// epsilon nudges values such as 1.005 over the rounding boundary.
const epsilon = 2.220446049250313e-16

// roundHalfUp rounds halves towards positive infinity.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

// Round rounds n to the nearest multiple of k at the given number of decimal
// places. Round(1.005, 1, 2) is 1.01 and Round(12.34, 5, 1) is 12.5.
func Round(n, k float64, resolution int) float64 {
	precision := math.Pow(10, float64(resolution))
	return roundHalfUp(roundHalfUp(((n+epsilon)*precision)/k)*k) / precision
}

// round2 rounds to two decimal places.
func round2(n float64) float64 {
	return Round(n, 1, 2)
}

// Percent returns percentage per cent of value, to three places.
func Percent(value, percentage float64) float64 {
	return Round(value*percentage/100, 1, 3)
}

// ToPercent returns value as a percentage of whole, to three places.
func ToPercent(value, whole float64) float64 {
	return Round(value*100/whole, 1, 3)
}

// Divide returns a / b to three places.
func Divide(a, b float64) float64 {
	return Round(a/b, 1, 3)
}

// Sum adds numbers, rounding to three places at each step.
func Sum(numbers ...float64) float64 {
	var total float64
	for _, n := range numbers {
		total = Round(total+n, 1, 3)
	}
	return total
}
