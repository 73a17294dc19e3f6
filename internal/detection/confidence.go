package detection

// CombinedConfidence merges the detector and OCR confidences for method.
// The result is always within [0,1].
func CombinedConfidence(method Method, detectorConf, ocrConf float64) float64 {
	var c float64
	switch method {
	case MethodOCRVerified:
		c = (detectorConf+ocrConf)/2 + 0.1
	case MethodOCRCorrected:
		c = detectorConf*0.3 + ocrConf*0.7
	default:
		c = detectorConf
	}
	return clamp01(c)
}

func clamp01(v float64) float64 {
	switch {
	case v != v || v < 0: // NaN or negative
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
