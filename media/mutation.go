package media

import "hash/fnv"

// MutationParams holds the perceptual transform deltas applied during a
// mutate rewrite. All values derive from the job id alone, so re-processing
// the same job reproduces the exact same transform.
type MutationParams struct {
	PitchDelta  float64 `json:"pitchDelta"`
	Brightness  float64 `json:"brightness"`
	Contrast    float64 `json:"contrast"`
	Saturation  float64 `json:"saturation"`
	NoiseLevel  int     `json:"noiseLevel"`
	OverlayFrom float64 `json:"overlayFrom"`
	OverlayTo   float64 `json:"overlayTo"`
}

// DeriveMutation maps a job id onto transform parameters via a stable hash.
// No wall clock or OS entropy is involved: redelivered jobs must produce
// byte-identical parameters.
func DeriveMutation(id string) MutationParams {
	h := fnv.New32a()
	h.Write([]byte(id))
	r := float64(h.Sum32()%10000) / 10000 // 0..1

	overlayFrom := 0.15 + r*0.2
	return MutationParams{
		PitchDelta:  r*0.004 - 0.002, // -0.2% .. +0.2%
		Brightness:  0.005,
		Contrast:    1.01,
		Saturation:  1.01,
		NoiseLevel:  2,
		OverlayFrom: overlayFrom,
		OverlayTo:   overlayFrom + 0.04,
	}
}
