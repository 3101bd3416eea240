package clinical

import "time"

// Category is the classification of a single blood pressure reading.
type Category string

const (
	High       Category = "high"
	InTarget   Category = "in_target"
	Borderline Category = "borderline"
)

// Thresholds in mmHg.
const (
	SevereSystolic  = 160
	SevereDiastolic = 110

	TargetSystolicMin  = 130
	TargetSystolicMax  = 150
	TargetDiastolicMin = 80
	TargetDiastolicMax = 100
)

// Protocol deadlines.
const (
	RecheckInterval        = 15 * time.Minute
	AdministrationDeadline = 45 * time.Minute

	// DefaultMinConfirmationGap is the minimum time between two severe readings
	// for the second one to confirm an emergency.
	DefaultMinConfirmationGap = time.Minute
)

// Classify maps a reading to exactly one category. Severe wins over target; anything
// that is neither is borderline.
func Classify(systolic, diastolic int) Category {
	if systolic >= SevereSystolic || diastolic >= SevereDiastolic {
		return High
	}
	if systolic >= TargetSystolicMin && systolic <= TargetSystolicMax &&
		diastolic >= TargetDiastolicMin && diastolic <= TargetDiastolicMax {
		return InTarget
	}
	return Borderline
}
