package tools

// PtrOf returns a pointer to v. The generated Grafana client takes optional
// params as pointers.
func PtrOf[T any](v T) *T {
	return &v
}
