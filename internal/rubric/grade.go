package rubric

type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeBPlus Grade = "B+"
	GradeB     Grade = "B"
	GradeCPlus Grade = "C+"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeF     Grade = "F"
)

var gradeSteps = []struct {
	min   float64
	grade Grade
}{
	{90, GradeAPlus},
	{80, GradeA},
	{70, GradeBPlus},
	{60, GradeB},
	{50, GradeCPlus},
	{40, GradeC},
	{30, GradeD},
}

// GradeFor maps a 0-100 score onto a letter grade.
func GradeFor(score float64) Grade {
	for _, s := range gradeSteps {
		if score >= s.min {
			return s.grade
		}
	}
	return GradeF
}
