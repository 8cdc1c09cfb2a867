package request

type CreateTask struct {
	Kind            string   `json:"kind" binding:"required,oneof=image video"`
	Prompt          string   `json:"prompt" binding:"required"`
	ReferenceImages []string `json:"reference_images"`
	Resolution      string   `json:"resolution"`
	AspectRatio     string   `json:"aspect_ratio"`
	Duration        int      `json:"duration" binding:"gte=0,lte=60"`
}

type QueryTask struct {
	TaskNo string `form:"task_no" binding:"required"`
}
