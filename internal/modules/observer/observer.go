package observer

// Observer receives task lifecycle events. data is a *model.GenerationTask.
type Observer interface {
	Update(event string, data interface{})
}
