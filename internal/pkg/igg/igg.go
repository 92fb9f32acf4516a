//Package igg computes the Global Gravity Index (IGG), a weighted pavement
//degradation score, from the defect observations of approved surveys.
//
//For every defect type the absolute frequency Fa is the number of observations,
//the relative frequency Fr = Fa*100/n where n is a stake count, and the
//individual index Igi = Fr*Fp where Fp is the weight factor of the defect type.
//The IGG is the sum of all Igi.
package igg

import (
	"math"
	"sort"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/errors"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
)

//Frequency is the absolute frequency of one defect type
type Frequency struct {
	DefectType pavement.DefectType
	Fa         int
	Segments   int
}

//Term is the contribution of one defect type to the IGG
type Term struct {
	Frequency
	Fr  float64
	Igi float64
}

//Result is the outcome of one IGG computation
type Result struct {
	IGG    float64
	Stakes int
	Terms  []Term
}

//DefectCount returns the total number of defect observations behind the result
func (r Result) DefectCount() int {
	total := 0
	for _, t := range r.Terms {
		total += t.Fa
	}
	return total
}

//Group tallies observations per defect type. Observations without a defect type are
//ignored. The frequencies are ordered by defect type id.
func Group(observations []pavement.Observation, catalog map[string]pavement.DefectType) ([]Frequency, error) {
	counts := map[string]int{}
	segments := map[string]map[string]bool{}

	for _, o := range observations {
		if !o.HasDefect() {
			continue
		}

		id := *o.DefectTypeID
		if _, ok := catalog[id]; !ok {
			return nil, errors.NotFound("defect type", id).WithContext("observation", o.ID)
		}

		counts[id]++
		if segments[id] == nil {
			segments[id] = map[string]bool{}
		}
		segments[id][o.SegmentID] = true
	}

	frequencies := make([]Frequency, 0, len(counts))
	for id, fa := range counts {
		frequencies = append(frequencies, Frequency{DefectType: catalog[id], Fa: fa, Segments: len(segments[id])})
	}

	sort.Slice(frequencies, func(i, j int) bool {
		return frequencies[i].DefectType.ID < frequencies[j].DefectType.ID
	})

	return frequencies, nil
}

//Compute turns frequencies into an IGG using n stakes as denominator. No
//frequencies yield an IGG of zero.
func Compute(frequencies []Frequency, n int) Result {
	if n < 1 {
		n = 1
	}

	result := Result{Stakes: n, Terms: make([]Term, 0, len(frequencies))}

	for _, f := range frequencies {
		fr := float64(f.Fa) * 100 / float64(n)
		igi := fr * f.DefectType.Weight

		result.Terms = append(result.Terms, Term{Frequency: f, Fr: fr, Igi: igi})
		result.IGG += igi
	}

	return result
}

//Round2 rounds a value to two decimal places for presentation
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
