package lib

// CeilDiv. ceil(a/b) untuk bilangan positif.
func CeilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// AlignUp. round size ke kelipatan blockSize berikutnya. size 0 tetap 0.
func AlignUp(size, blockSize int64) int64 {
	if blockSize <= 0 {
		return size
	}
	return CeilDiv(size, blockSize) * blockSize
}
