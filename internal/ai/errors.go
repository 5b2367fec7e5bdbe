package ai

import "errors"

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")

	// ErrVisionFailed means neither vision provider produced a result for a photo.
	ErrVisionFailed = errors.New("VISION_FAILED")

	ErrUnsupportedImage = errors.New("unsupported image format: only JPEG and PNG are accepted")
	ErrImageForbidden   = errors.New("image fetch forbidden (403)")
	ErrImageNotFound    = errors.New("image not found (404)")
	ErrImageUpstream    = errors.New("image host error (5xx)")
	ErrRedirectLoop     = errors.New("image fetch redirect loop")
	ErrImageUnreachable = errors.New("image host unreachable")
)
