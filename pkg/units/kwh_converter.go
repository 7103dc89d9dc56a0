package units

import "math"

// Energy in kWh for a volume in m³, rounded half away from zero.
func VolumeToEnergy(m3 int64, kwhPerM3 float64) int64 {
	return int64(math.Round(float64(m3) * kwhPerM3))
}

// Gross energy keeps the decimals, the gross volume is not rounded by the portal.
func GrossVolumeToEnergy(m3 float64, kwhPerM3 float64) float64 {
	return m3 * kwhPerM3
}

// Percentage of part over whole, rounded half away from zero.
func Percent(part, whole float64) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(part / whole * 100))
}
