package request

type PipelineStream struct {
	// ImageBase64 may carry a data URI prefix.
	ImageBase64 string `json:"image_base64" binding:"required"`
}
