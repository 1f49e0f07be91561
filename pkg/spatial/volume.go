package spatial

import "math"

const MaxVolume = 110

// Volume returns the local volume (0-110) a listener should hear a speaker at.
// Falloff is squared and rounded up. Players in different worlds are never
// audible, and a hearing distance that is not strictly positive mutes everyone.
func Volume(listener, speaker Position, maxHearingDistance float64) uint8 {
	if listener.World != speaker.World {
		return 0
	}
	if !(maxHearingDistance > 0) {
		return 0
	}

	distance := math.Min(math.Max(listener.Distance(speaker), 0), maxHearingDistance)
	attenuation := 1 - distance/maxHearingDistance
	volume := math.Ceil(attenuation * attenuation * MaxVolume)

	switch {
	case math.IsNaN(volume), volume <= 0:
		return 0
	case volume >= MaxVolume:
		return MaxVolume
	}
	return uint8(volume)
}
