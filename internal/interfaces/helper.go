package interfaces

// MapSlice 切片逐项转换
func MapSlice[T, R any](slice []T, fn func(int, T) R) []R {
	res := make([]R, len(slice))
	for i, v := range slice {
		res[i] = fn(i, v)
	}
	return res
}
