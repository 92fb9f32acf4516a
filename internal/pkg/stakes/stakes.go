//Package stakes converts kilometer bounds into 20 meter stationing units.
package stakes

import (
	"fmt"
	"math"
)

//Length is the length of one stake in meters
const Length = 20.0

//Count returns the number of stakes between kmStart and kmEnd. Intervals shorter
//than one stake still count as one observation unit.
func Count(kmStart, kmEnd float64) int {
	n := int(math.Floor(kmEnd*1000/Length)) - int(math.Floor(kmStart*1000/Length))
	if n < 1 {
		return 1
	}
	return n
}

//RoadCount returns the number of stakes along a whole road
func RoadCount(lengthKm float64) int {
	return Count(0, lengthKm)
}

//Label formats a distance in meters using stationing notation, e.g. "5 + 3m"
func Label(meters float64) string {
	return fmt.Sprintf("%d + %.0fm", int(math.Floor(meters/Length)), math.Mod(meters, Length))
}

//Stations lists the labels of every stake boundary inside the interval
func Stations(kmStart, kmEnd float64) []string {
	first := math.Ceil(kmStart * 1000 / Length)
	last := math.Floor(kmEnd * 1000 / Length)

	labels := []string{}
	for i := first; i <= last; i++ {
		labels = append(labels, Label(i*Length))
	}

	return labels
}

//Validate rejects kilometer bounds that are negative, not a number or inverted
func Validate(kmStart, kmEnd float64) error {
	if math.IsNaN(kmStart) || math.IsNaN(kmEnd) || math.IsInf(kmStart, 0) || math.IsInf(kmEnd, 0) {
		return fmt.Errorf("kilometer bounds must be finite numbers")
	}
	if kmStart < 0 || kmEnd < 0 {
		return fmt.Errorf("kilometer bounds must not be negative (%f, %f)", kmStart, kmEnd)
	}
	if kmEnd <= kmStart {
		return fmt.Errorf("segment end %f must be greater than its start %f", kmEnd, kmStart)
	}
	return nil
}
