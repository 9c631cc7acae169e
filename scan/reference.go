package scan

func findBranchRef(c byte, b []byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return len(b)
}

func findNewBranchPosRef(c byte, b []byte) int {
	for i, x := range b {
		if x > c {
			return i
		}
	}
	return len(b)
}

func prefixFirstDiffRef(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
