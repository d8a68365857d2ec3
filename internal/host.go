package internal

// HostInstance is an opaque handle owned by the host backend.
type HostInstance any

// Host applies committed mutations to an external tree. All methods are
// called from the goroutine driving the scheduler.
type Host interface {
	CreateInstance(tag string, props Props) (HostInstance, error)
	CreateTextInstance(text string) (HostInstance, error)

	AppendInitialChild(parent, child HostInstance) error
	AppendChild(parent, child HostInstance) error
	InsertBefore(parent, child, before HostInstance) error
	RemoveChild(parent, child HostInstance) error

	CommitUpdate(inst HostInstance, patch Patch, oldProps, newProps Props) error
	CommitTextUpdate(inst HostInstance, oldText, newText string) error

	PrepareForCommit(container HostInstance) error
	// ResetAfterCommit runs after every mutation pass, including failed ones.
	ResetAfterCommit(container HostInstance)
}
