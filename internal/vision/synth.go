package vision

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cespare/xxhash/v2"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
)

// Purpose salts keep the per-capability random streams independent while
// still deriving from the same image content.
const (
	saltDetect  = 0x9e3779b97f4a7c15
	saltTag     = 0xc2b2ae3d27d4eb4f
	saltPattern = 0x165667b19e3779f9
	saltHealth  = 0x27d4eb2f165667c5
)

var fallbackSpecies = []string{
	datastore.SpeciesCattle,
	datastore.SpeciesGoat,
	datastore.SpeciesSheep,
	datastore.SpeciesPig,
	datastore.SpeciesHorse,
	datastore.SpeciesPoultry,
}

// contentRand returns a random stream seeded purely by the image content.
// Byte-identical images always yield the identical stream, which makes
// every synthesized result reproducible.
func contentRand(img *ImageData, salt uint64) *rand.Rand {
	seed := xxhash.Sum64(img.Bytes) ^ salt
	return rand.New(rand.NewSource(int64(seed))) //nolint:gosec // reproducibility is the point, not randomness quality
}

// synthDetections builds one to five plausible bounding boxes with species
// and confidence, all derived from the content stream.
func synthDetections(img *ImageData) []RawDetection {
	rng := contentRand(img, saltDetect)

	count := 1 + rng.Intn(5)
	detections := make([]RawDetection, 0, count)
	for i := 0; i < count; i++ {
		x1 := 0.05 + rng.Float64()*0.55
		y1 := 0.05 + rng.Float64()*0.55
		width := 0.15 + rng.Float64()*0.20
		height := 0.20 + rng.Float64()*0.20

		detections = append(detections, RawDetection{
			Box: Region{
				X1: round4(x1),
				Y1: round4(y1),
				X2: round4(math.Min(x1+width, 0.95)),
				Y2: round4(math.Min(y1+height, 0.95)),
			},
			Species:    fallbackSpecies[rng.Intn(len(fallbackSpecies))],
			Confidence: round4(0.65 + rng.Float64()*0.33),
		})
	}
	return detections
}

// synthTagReading simulates ear tag OCR. Reads fail for a fixed share of
// content hashes, mirroring tags that are occluded or unreadable.
func synthTagReading(img *ImageData, region *Region) TagReading {
	rng := contentRand(img, saltTag)

	if rng.Float64() >= 0.85 {
		return TagReading{}
	}

	reading := TagReading{
		OK:         true,
		Text:       synthTagID(rng),
		Confidence: round4(0.70 + rng.Float64()*0.28),
	}
	if region != nil {
		reading.Region = *region
	} else {
		x1 := 0.1 + rng.Float64()*0.3
		y1 := 0.1 + rng.Float64()*0.2
		reading.Region = Region{
			X1: round4(x1),
			Y1: round4(y1),
			X2: round4(x1 + 0.1 + rng.Float64()*0.2),
			Y2: round4(y1 + 0.05 + rng.Float64()*0.1),
		}
	}
	return reading
}

// synthTagID produces a tag in one of the common ear tag formats
// (AB1234, AB-1234, IN1234567, TAG-12345).
func synthTagID(rng *rand.Rand) string {
	letters := func(n int) string {
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = byte('A' + rng.Intn(26))
		}
		return string(buf)
	}
	switch rng.Intn(4) {
	case 0:
		return fmt.Sprintf("%s%04d", letters(2), 1000+rng.Intn(9000))
	case 1:
		return fmt.Sprintf("%s-%04d", letters(2), 1000+rng.Intn(9000))
	case 2:
		return fmt.Sprintf("IN%07d", 1000000+rng.Intn(9000000))
	default:
		return fmt.Sprintf("TAG-%05d", 10000+rng.Intn(90000))
	}
}

// synthPatternMatch simulates muzzle print matching against stored prints.
func synthPatternMatch(img *ImageData) PatternMatch {
	rng := contentRand(img, saltPattern)

	if rng.Float64() >= 0.7 {
		return PatternMatch{}
	}

	const hexdigits = "0123456789abcdef"
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = hexdigits[rng.Intn(len(hexdigits))]
	}
	return PatternMatch{
		OK:         true,
		Hash:       "muzzle_" + string(hash),
		Confidence: round4(0.75 + rng.Float64()*0.20),
	}
}

// synthHealthScores derives the four sub-scores from actual pixel
// statistics where possible: brighter, higher-contrast images score
// healthier. The jitter comes from the content stream, so the result is
// reproducible per image.
func synthHealthScores(img *ImageData) HealthScores {
	rng := contentRand(img, saltHealth)

	brightness, contrast := img.LuminanceStats()
	healthScore := 0.5 + brightness*0.3 + contrast*0.2
	healthScore = math.Min(math.Max(healthScore, 0.3), 0.95)

	type base struct{ posture, coat, mobility, alertness float64 }
	var b base
	var confidence float64
	switch {
	case healthScore >= 0.75:
		b = base{0.90, 0.88, 0.92, 0.85}
		confidence = healthScore
	case healthScore >= 0.5:
		b = base{0.70, 0.65, 0.72, 0.68}
		confidence = 0.70 + rng.Float64()*0.15
	default:
		b = base{0.45, 0.40, 0.50, 0.42}
		confidence = 0.65 + rng.Float64()*0.20
	}

	jitter := func(v float64) float64 {
		v += rng.Float64()*0.2 - 0.1
		return round2(math.Min(math.Max(v, 0.1), 1.0))
	}
	return HealthScores{
		Posture:    jitter(b.posture),
		Coat:       jitter(b.coat),
		Mobility:   jitter(b.mobility),
		Alertness:  jitter(b.alertness),
		Confidence: round4(confidence),
	}
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
