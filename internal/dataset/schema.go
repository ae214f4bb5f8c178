package dataset

import "strings"

// Canonical column identifiers of the behavior dataset.
const (
	UserID              = "User_ID"
	DeviceModel         = "Device_Model"
	OperatingSystem     = "Operating_System"
	AppUsageTime        = "App_Usage_Time_min_day"
	ScreenOnTime        = "Screen_On_Time_hours_day"
	BatteryDrain        = "Battery_Drain_mAh_day"
	AppsInstalled       = "Number_of_Apps_Installed"
	DataUsage           = "Data_Usage_MB_day"
	Age                 = "Age"
	Gender              = "Gender"
	BehaviorClass       = "User_Behavior_Class"
	UsageIntensityScore = "Usage_Intensity_Score"
)

// RequiredColumns must be present in every source, after canonicalization.
var RequiredColumns = []string{
	UserID,
	DeviceModel,
	OperatingSystem,
	AppUsageTime,
	ScreenOnTime,
	BatteryDrain,
	AppsInstalled,
	DataUsage,
	Age,
	Gender,
	BehaviorClass,
}

// NumericColumns are coerced to Value by Normalize.
var NumericColumns = []string{
	AppUsageTime,
	ScreenOnTime,
	BatteryDrain,
	AppsInstalled,
	DataUsage,
	Age,
}

// CategoricalColumns are the text columns usable as filter or group keys.
var CategoricalColumns = []string{
	DeviceModel,
	OperatingSystem,
	Gender,
	BehaviorClass,
}

var (
	knownByLower   = map[string]string{}
	numericByLower = map[string]bool{}
)

func init() {
	for _, name := range append(RequiredColumns, UsageIntensityScore) {
		knownByLower[strings.ToLower(name)] = name
	}
	for _, name := range append(NumericColumns, UsageIntensityScore) {
		numericByLower[strings.ToLower(name)] = true
	}
}

// IsNumericColumn reports whether name designates a numeric schema column.
func IsNumericColumn(name string) bool {
	return numericByLower[strings.ToLower(NormalizeIdentifier(name))]
}
