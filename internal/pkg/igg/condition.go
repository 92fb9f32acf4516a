package igg

//Condition is the conventional display band of an IGG value
type Condition string

const (
	ConditionOptimal  Condition = "optimal"
	ConditionGood     Condition = "good"
	ConditionFair     Condition = "fair"
	ConditionPoor     Condition = "poor"
	ConditionVeryPoor Condition = "very poor"
)

//Classify maps an IGG value to its display band
func Classify(value float64) Condition {
	switch {
	case value <= 20:
		return ConditionOptimal
	case value <= 40:
		return ConditionGood
	case value <= 80:
		return ConditionFair
	case value <= 160:
		return ConditionPoor
	default:
		return ConditionVeryPoor
	}
}
