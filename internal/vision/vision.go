// Package vision is the boundary to the face detection and embedding
// capability. The pipeline consumes it as an opaque adapter: image bytes in,
// bounding boxes plus one fixed-length embedding per box out.
package vision

import "context"

// Detection is a single detected face with its embedding.
type Detection struct {
	FaceIndex int       `json:"face_index"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	Embedding []float32 `json:"embedding"`
	DetScore  float64   `json:"det_score"`
	Age       int       `json:"age"` // estimated apparent age, 0 when the model does not report one
}

// Width returns the bounding box width in pixels.
func (d Detection) Width() float64 {
	if len(d.BBox) != 4 {
		return 0
	}
	return d.BBox[2] - d.BBox[0]
}

// Height returns the bounding box height in pixels.
func (d Detection) Height() float64 {
	if len(d.BBox) != 4 {
		return 0
	}
	return d.BBox[3] - d.BBox[1]
}

// Adapter detects faces and computes their embeddings. Implementations must
// return an empty slice, not an error, when an image contains no faces.
type Adapter interface {
	DetectFaces(ctx context.Context, imageData []byte, model string) ([]Detection, error)
}

// FilterBySize drops detections whose bounding box is smaller than
// minFaceSize pixels in either dimension. minFaceSize <= 0 disables the
// filter.
func FilterBySize(detections []Detection, minFaceSize int) []Detection {
	if minFaceSize <= 0 {
		return detections
	}
	filtered := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Width() >= float64(minFaceSize) && d.Height() >= float64(minFaceSize) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}
