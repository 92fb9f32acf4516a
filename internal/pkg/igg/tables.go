package igg

import "sort"

//QuantitativeRow counts the observations of one defect type across a road
type QuantitativeRow struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Fa       int    `json:"fa"`
	Segments int    `json:"segments"`
}

//MemoirRow documents how one defect type contributes to the IGG
type MemoirRow struct {
	Name string  `json:"name"`
	Fa   int     `json:"fa"`
	Fr   float64 `json:"fr"`
	Fp   float64 `json:"fp"`
	Igi  float64 `json:"igi"`
}

//QuantitativeTable lists defect types with observations, most frequent first
func QuantitativeTable(terms []Term) []QuantitativeRow {
	rows := []QuantitativeRow{}

	for _, t := range terms {
		if t.Fa == 0 {
			continue
		}
		rows = append(rows, QuantitativeRow{
			Name:     t.DefectType.Name,
			Code:     t.DefectType.Code,
			Fa:       t.Fa,
			Segments: t.Segments,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Fa == rows[j].Fa {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].Fa > rows[j].Fa
	})

	return rows
}

//MemoirTable lists the calculation of every term, largest Igi first
func MemoirTable(terms []Term) []MemoirRow {
	rows := make([]MemoirRow, 0, len(terms))

	for _, t := range terms {
		rows = append(rows, MemoirRow{
			Name: t.DefectType.Name,
			Fa:   t.Fa,
			Fr:   Round2(t.Fr),
			Fp:   t.DefectType.Weight,
			Igi:  Round2(t.Igi),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Igi == rows[j].Igi {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].Igi > rows[j].Igi
	})

	return rows
}
