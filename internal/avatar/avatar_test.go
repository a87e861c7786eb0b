package avatar

import (
	"strconv"
	"strings"
	"testing"
)

func TestRandomEncodesThreePartsInRange(t *testing.T) {
	limits := []int{bodyCount, mouthCount, eyesCount}
	for i := 0; i < 200; i++ {
		code := Random()
		parts := strings.Split(code, ".")
		if len(parts) != 3 {
			t.Fatalf("code %q has %d parts, want 3", code, len(parts))
		}
		for j, part := range parts {
			n, err := strconv.ParseInt(part, encodeBase, 64)
			if err != nil {
				t.Fatalf("code %q part %d: %v", code, j, err)
			}
			if n < 0 || int(n) >= limits[j] {
				t.Fatalf("code %q part %d = %d, want [0, %d)", code, j, n, limits[j])
			}
		}
	}
}
