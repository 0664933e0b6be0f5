package history

import (
	"math"
)

// Vector is a severity-mix state.
type Vector []float64

// severityOrder fixes the dimensions of a severity vector.
var severityOrder = []string{"critical", "high", "medium", "low", "informational"}

var severityRank = map[string]int{
	"critical": 0, "high": 1, "medium": 2, "low": 3, "informational": 4, "unknown": 5,
}

// SeverityVector maps failing counts per severity onto a unit vector.
func SeverityVector(s RunSummary) Vector {
	v := make(Vector, len(severityOrder))
	for i, sev := range severityOrder {
		v[i] = float64(s.FailBySeverity[sev])
	}
	return Normalize(v)
}

// Normalize scales the vector to unit length.
func Normalize(v Vector) Vector {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	magnitude := math.Sqrt(sum)
	if magnitude == 0 {
		return v
	}

	result := make(Vector, len(v))
	for i, x := range v {
		result[i] = x / magnitude
	}
	return result
}

// DotProduct calculates the dot product of two vectors.
func DotProduct(a, b Vector) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// CosineSimilarity calculates the cosine similarity between vectors.
// Two empty mixes are identical.
func CosineSimilarity(a, b Vector) float64 {
	dot := DotProduct(a, b)

	var magA, magB float64
	for _, x := range a {
		magA += x * x
	}
	for _, x := range b {
		magB += x * x
	}

	magA = math.Sqrt(magA)
	magB = math.Sqrt(magB)

	if magA == 0 && magB == 0 {
		return 1
	}
	if magA == 0 || magB == 0 {
		return 0
	}

	return dot / (magA * magB)
}
