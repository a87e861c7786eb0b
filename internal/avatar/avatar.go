// Package avatar assigns randomized sprite codes to joining participants.
// The sprite sheets themselves live with the client; the server only deals
// in part indices encoded "body.mouth.eyes" in base 36.
package avatar

import (
	"math/rand"
	"strconv"
)

const (
	encodeBase = 36

	bodyCount  = 12
	mouthCount = 10
	eyesCount  = 14
)

// Random returns a fresh avatar code.
func Random() string {
	return encode(rand.Intn(bodyCount), rand.Intn(mouthCount), rand.Intn(eyesCount))
}

func encode(body, mouth, eyes int) string {
	return strconv.FormatInt(int64(body), encodeBase) +
		"." + strconv.FormatInt(int64(mouth), encodeBase) +
		"." + strconv.FormatInt(int64(eyes), encodeBase)
}
