package consts

type ModelSupplier string

const (
	Ark    ModelSupplier = "ark"
	Visual ModelSupplier = "visual"
)

func (m ModelSupplier) String() string {
	return string(m)
}

type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

func (k MediaKind) String() string {
	return string(k)
}

func (k MediaKind) Valid() bool {
	return k == KindImage || k == KindVideo
}

// task lifecycle events published to observers
const (
	EventTaskSubmitted = "task_submitted"
	EventTaskCompleted = "task_completed"
	EventTaskFailed    = "task_failed"
)

const (
	VisualAPIVersion   = "2022-08-31"
	VisualSuccessCode  = 10000
	VisualSubmitAction = "CVSync2AsyncSubmitTask"
	VisualResultAction = "CVSync2AsyncGetResult"
)

// visual business codes that are retried instead of failing the task
const (
	VisualQPSLimitCode         = 50429
	VisualConcurrencyLimitCode = 50430
	VisualInternalErrorCode    = 50500
	VisualInternalRPCErrorCode = 50501
)
