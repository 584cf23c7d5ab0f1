package vision

// FallbackBackend synthesizes perception results without a model. Every
// result is a pure function of the image content, so repeated calls on the
// same bytes are byte-for-byte identical.
type FallbackBackend struct{}

// NewFallbackBackend returns the deterministic fallback backend.
func NewFallbackBackend() *FallbackBackend {
	return &FallbackBackend{}
}

func (f *FallbackBackend) Mode() Mode { return ModeDeterministicFallback }

func (f *FallbackBackend) Detect(img *ImageData) ([]RawDetection, error) {
	return synthDetections(img), nil
}

func (f *FallbackBackend) ReadTag(img *ImageData, region *Region) (TagReading, error) {
	return synthTagReading(img, region), nil
}

func (f *FallbackBackend) MatchPattern(img *ImageData, region *Region) (PatternMatch, error) {
	return synthPatternMatch(img), nil
}

func (f *FallbackBackend) ScoreHealth(img *ImageData, region *Region) (HealthScores, error) {
	return synthHealthScores(img), nil
}
